package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/neopixel/internal/discovery"
	"github.com/muurk/neopixel/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Outbound messages queued per client before it is dropped as too slow
	sendBuffer = 16
)

// Message types exchanged over /ws.
const (
	TypeState  = "state"
	TypeError  = "error"
	TypeToggle = "toggle"
	TypeSelect = "select"
	TypeManual = "manual"
	TypeRescan = "rescan"
)

// Command is a message sent by a client.
type Command struct {
	Type    string `json:"type"`
	Row     int    `json:"row,omitempty"`
	Col     int    `json:"col,omitempty"`
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// Message is a message sent to clients.
type Message struct {
	Type    string `json:"type"`
	State   *State `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
}

var errUnknownCommand = errors.New("unknown command")

// client is one websocket connection.
type client struct {
	id         string
	remoteAddr string
	conn       *websocket.Conn
	send       chan []byte
}

// hub tracks connected clients and fans messages out to them.
type hub struct {
	mu      sync.Mutex
	clients map[string]*client
}

func newHub() *hub {
	return &hub{clients: make(map[string]*client)}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

// remove forgets c and closes its send queue. It is safe to call twice.
func (h *hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
}

// broadcast queues data for every client. Clients whose queue is full are
// disconnected.
func (h *hub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- data:
		default:
			logging.Warn("Dropping slow websocket client", zap.String("client_id", id))
			delete(h.clients, id)
			close(c.send)
		}
	}
}

// send queues data for one client.
func (h *hub) send(c *client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		_ = c.conn.Close()
		delete(h.clients, id)
		close(c.send)
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// readPump applies client commands until the connection fails.
func (s *Server) readPump(c *client) {
	defer func() {
		s.hub.remove(c)
		_ = c.conn.Close()
		logging.LogConnection(c.id, c.remoteAddr, "websocket_closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Info("Websocket read failed",
					zap.String("client_id", c.id),
					zap.Error(err),
				)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.replyError(c, fmt.Errorf("malformed command: %w", err))
			continue
		}

		logging.Debug("Websocket command received",
			zap.String("client_id", c.id),
			zap.String("type", cmd.Type),
		)

		if err := s.apply(cmd); err != nil {
			s.replyError(c, err)
		}
	}
}

// writePump delivers queued messages and keeps the connection alive with pings.
func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// apply performs one client command against the session or grid.
func (s *Server) apply(cmd Command) error {
	switch cmd.Type {
	case TypeToggle:
		if !s.grid.InBounds(cmd.Row, cmd.Col) {
			return fmt.Errorf("pixel (%d,%d) is outside the %dx%d grid", cmd.Row, cmd.Col, s.grid.Rows(), s.grid.Cols())
		}
		s.grid.TogglePixel(cmd.Row, cmd.Col)
	case TypeSelect:
		if cmd.Address == "" {
			return fmt.Errorf("select needs an address")
		}
		s.session.Select(discovery.Device{Name: cmd.Name, Address: cmd.Address})
	case TypeManual:
		s.session.SetManualAddress(cmd.Address)
	case TypeRescan:
		s.session.StartBrowsing()
	default:
		return fmt.Errorf("%w: %q", errUnknownCommand, cmd.Type)
	}
	return nil
}

func (s *Server) replyError(c *client, err error) {
	logging.Debug("Rejected websocket command",
		zap.String("client_id", c.id),
		zap.Error(err),
	)
	data, merr := json.Marshal(Message{Type: TypeError, Message: err.Error()})
	if merr != nil {
		return
	}
	s.hub.send(c, data)
}

// stateMessage encodes the current state as a "state" message.
func (s *Server) stateMessage() ([]byte, error) {
	state := snapshotState(s.session, s.grid)
	return json.Marshal(Message{Type: TypeState, State: &state})
}
