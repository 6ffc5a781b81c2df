package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/neopixel/internal/discovery"
	"github.com/muurk/neopixel/internal/logging"
	"github.com/muurk/neopixel/internal/pixel"
)

// DefaultListen is the address "serve" listens on when none is configured.
const DefaultListen = ":8080"

// shutdownTimeout bounds how long Shutdown waits for handlers to return.
const shutdownTimeout = 10 * time.Second

// Config holds the server configuration
type Config struct {
	// Listen is the host:port to listen on
	Listen string

	// AllowedOrigins lists the browser origins that may use the API
	// (e.g., "http://localhost:3000", or "null" for file:// pages).
	// Empty allows every origin, as the matrix firmware does.
	AllowedOrigins []string
}

// allowsOrigin reports whether a request from origin may use the API.
// Requests without an Origin header do not come from a browser page and are
// always allowed.
func (c *Config) allowsOrigin(origin string) bool {
	if origin == "" || len(c.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// setCORSHeaders adds Access-Control-Allow-Origin when the request origin is
// allowed.
func (c *Config) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(c.AllowedOrigins) == 0 {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		return
	}
	w.Header().Add("Vary", "Origin")
	if origin := r.Header.Get("Origin"); origin != "" && c.allowsOrigin(origin) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
}

// Server pushes the session and grid state to websocket clients and applies
// their commands.
type Server struct {
	config   *Config
	session  Session
	grid     Grid
	hub      *hub
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	stopWatch  context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a new Server instance
func New(config *Config, session Session, grid Grid) *Server {
	if config == nil {
		config = &Config{}
	}
	if config.Listen == "" {
		config.Listen = DefaultListen
	}
	return &Server{
		config:  config,
		session: session,
		grid:    grid,
		hub:     newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return config.allowsOrigin(r.Header.Get("Origin"))
			},
		},
	}
}

// Handler returns the HTTP routes served by the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()

	s.mu.Lock()
	s.httpServer = httpServer
	s.stopWatch = stopWatch
	s.mu.Unlock()

	logging.Info("Starting websocket server",
		zap.String("addr", listener.Addr().String()),
	)

	// Subscribe before serving so no change after the first client connects
	// is missed.
	sessionEvents, stopSession := s.session.Subscribe()
	gridChanges, stopGrid := s.grid.Subscribe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer stopSession()
		defer stopGrid()
		s.watch(watchCtx, sessionEvents, gridChanges)
	}()

	errChan := make(chan error, 1)
	go func() {
		errChan <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logging.Info("Shutdown requested, stopping server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer, stopWatch := s.httpServer, s.stopWatch
	s.mu.Unlock()

	if httpServer == nil {
		return nil
	}

	err := httpServer.Shutdown(ctx)
	stopWatch()

	// Hijacked websocket connections are not closed by http.Server.
	s.hub.closeAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}

	logging.Sync()

	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// GetActiveConnections returns the number of connected websocket clients
func (s *Server) GetActiveConnections() int {
	return s.hub.count()
}

// watch pushes a fresh state to every client whenever the session or grid
// changes.
func (s *Server) watch(ctx context.Context, sessionEvents <-chan discovery.Event, gridChanges <-chan pixel.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sessionEvents:
			if !ok {
				sessionEvents = nil
				continue
			}
		case _, ok := <-gridChanges:
			if !ok {
				gridChanges = nil
				continue
			}
		}
		s.pushState()
	}
}

func (s *Server) pushState() {
	data, err := s.stateMessage()
	if err != nil {
		logging.Error("Failed to encode state", zap.Error(err))
		return
	}
	s.hub.broadcast(data)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.config.setCORSHeaders(w, r)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshotState(s.session, s.grid)); err != nil {
		logging.Error("Failed to write state", zap.Error(err))
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Debug("Websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("origin", r.Header.Get("Origin")),
			zap.Error(err),
		)
		return
	}

	c := &client{
		id:         uuid.New().String(),
		remoteAddr: r.RemoteAddr,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
	}
	s.hub.add(c)
	logging.LogConnection(c.id, c.remoteAddr, "websocket_upgraded")

	if data, err := s.stateMessage(); err == nil {
		s.hub.send(c, data)
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.writePump(c)
	}()
	go func() {
		defer s.wg.Done()
		s.readPump(c)
	}()
}
