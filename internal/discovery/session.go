package discovery

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/neopixel/internal/events"
	"github.com/muurk/neopixel/internal/logging"
)

// EventKind identifies what changed in a Session.
type EventKind int

const (
	// DeviceAdded means Device joined the discovered list
	DeviceAdded EventKind = iota
	// DeviceRemoved means Device left the discovered list
	DeviceRemoved
	// ListCleared means browsing restarted and the list is empty
	ListCleared
	// SelectionChanged means Device is the new selection
	SelectionChanged
)

func (k EventKind) String() string {
	switch k {
	case DeviceAdded:
		return "added"
	case DeviceRemoved:
		return "removed"
	case ListCleared:
		return "cleared"
	case SelectionChanged:
		return "selected"
	default:
		return "unknown"
	}
}

// Event is published on every change to the list or the selection.
type Event struct {
	Kind   EventKind
	Device Device
}

// opQueueSize bounds how many discovery callbacks can wait for the loop.
const opQueueSize = 64

// Session keeps the live list of discovered devices and the current
// selection. All state is owned by one goroutine; every mutation, including
// discovery callbacks, is queued onto it. A Session is created once at
// startup and shared by reference with the presentation layers.
type Session struct {
	provider Provider
	changed  *events.Broadcaster[Event]

	ops       chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// owned by the loop goroutine
	devices     []Device
	selected    Device
	hasSelected bool
	generation  uint64
	stopBrowse  context.CancelFunc
}

// NewSession creates a session around provider and starts its loop. Browsing
// does not begin until StartBrowsing. A nil provider gives a session that only
// ever holds manual selections.
func NewSession(provider Provider) *Session {
	s := &Session{
		provider: provider,
		changed:  events.NewBroadcaster[Event](),
		ops:      make(chan func(), opQueueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.quit:
			if s.stopBrowse != nil {
				s.stopBrowse()
				s.stopBrowse = nil
			}
			return
		}
	}
}

// do runs op on the loop and waits for it. It reports false if the session
// is closed.
func (s *Session) do(op func()) bool {
	finished := make(chan struct{})
	select {
	case s.ops <- func() { op(); close(finished) }:
	case <-s.done:
		return false
	}
	select {
	case <-finished:
		return true
	case <-s.done:
		return false
	}
}

// post queues op without waiting for it to run.
func (s *Session) post(op func()) {
	select {
	case s.ops <- op:
	case <-s.done:
	}
}

// StartBrowsing (re)starts discovery. Any earlier browse is cancelled and the
// list is cleared at once. Results from the earlier browse that are still in
// flight are discarded. A provider that fails to start is logged, not
// reported: results simply never arrive.
func (s *Session) StartBrowsing() {
	s.do(func() {
		if s.stopBrowse != nil {
			s.stopBrowse()
			s.stopBrowse = nil
		}

		s.generation++
		s.devices = nil
		s.changed.Publish(Event{Kind: ListCleared})

		if s.provider == nil {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		s.stopBrowse = cancel
		h := &generationHandler{session: s, generation: s.generation}
		provider := s.provider

		go func() {
			if err := provider.Browse(ctx, h); err != nil && ctx.Err() == nil {
				logging.Warn("Device discovery stopped", zap.Error(err))
			}
		}()
	})
}

// OnResolved adds Device{name, address} unless an identical entry exists.
func (s *Session) OnResolved(name, address string) {
	s.do(func() { s.addDevice(name, address) })
}

// OnRemoved drops every entry named name. The selection is left alone.
func (s *Session) OnRemoved(name string) {
	s.do(func() { s.removeDevices(name) })
}

// Select makes d the current selection. d does not have to be in the list.
func (s *Session) Select(d Device) {
	s.do(func() { s.setSelected(d) })
}

// SetManualAddress selects a synthetic Manual device at address. Empty
// input is ignored. The address is not validated.
func (s *Session) SetManualAddress(address string) {
	if address == "" {
		return
	}
	s.Select(ManualDevice(address))
}

// Devices returns a copy of the discovered list in discovery order.
func (s *Session) Devices() []Device {
	var out []Device
	s.do(func() {
		out = make([]Device, len(s.devices))
		copy(out, s.devices)
	})
	return out
}

// Selected returns the current selection, if any.
func (s *Session) Selected() (Device, bool) {
	var d Device
	var ok bool
	s.do(func() { d, ok = s.selected, s.hasSelected })
	return d, ok
}

// SelectedAddress returns the address of the current selection, if any.
func (s *Session) SelectedAddress() (string, bool) {
	d, ok := s.Selected()
	if !ok {
		return "", false
	}
	return d.Address, true
}

// Subscribe returns a channel of session changes and a func to stop receiving.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.changed.Subscribe()
}

// Close stops browsing and the loop. Later calls on the session are no-ops.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.done
		s.changed.Close()
	})
}

func (s *Session) addDevice(name, address string) {
	d := Device{Name: name, Address: address}
	for _, existing := range s.devices {
		if existing == d {
			return
		}
	}
	s.devices = append(s.devices, d)
	logging.LogDiscoveryEvent("added", name, address)
	s.changed.Publish(Event{Kind: DeviceAdded, Device: d})
}

func (s *Session) removeDevices(name string) {
	kept := s.devices[:0]
	var removed []Device
	for _, d := range s.devices {
		if d.Name == name {
			removed = append(removed, d)
			continue
		}
		kept = append(kept, d)
	}
	s.devices = kept

	for _, d := range removed {
		logging.LogDiscoveryEvent("removed", d.Name, d.Address)
		s.changed.Publish(Event{Kind: DeviceRemoved, Device: d})
	}
}

func (s *Session) setSelected(d Device) {
	s.selected = d
	s.hasSelected = true
	logging.LogSelection(d.Name, d.Address)
	s.changed.Publish(Event{Kind: SelectionChanged, Device: d})
}

// generationHandler tags provider callbacks with the browse that produced
// them so results from a cancelled browse never reach the list.
type generationHandler struct {
	session    *Session
	generation uint64
}

func (h *generationHandler) OnResolved(name, address string) {
	h.session.post(func() {
		if h.generation == h.session.generation {
			h.session.addDevice(name, address)
		}
	})
}

func (h *generationHandler) OnRemoved(name string) {
	h.session.post(func() {
		if h.generation == h.session.generation {
			h.session.removeDevices(name)
		}
	})
}
