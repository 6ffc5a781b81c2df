package discovery

import (
	"context"
	"errors"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

// fakeResolver mimics zeroconf: it sends its canned entries, then closes the
// channel once ctx is done.
type fakeResolver struct {
	browse    [][]*zeroconf.ServiceEntry // one slice per sweep
	lookup    map[string]*zeroconf.ServiceEntry
	browseErr error

	mu       sync.Mutex
	sweeps   int
	lookedUp []string
}

func entry(instance string, ips ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, ServiceType, ServiceDomain)
	for _, ip := range ips {
		e.AddrIPv4 = append(e.AddrIPv4, net.ParseIP(ip))
	}
	return e
}

func (r *fakeResolver) Browse(ctx context.Context, _, _ string, entries chan<- *zeroconf.ServiceEntry) error {
	if r.browseErr != nil {
		return r.browseErr
	}
	r.mu.Lock()
	var batch []*zeroconf.ServiceEntry
	if r.sweeps < len(r.browse) {
		batch = r.browse[r.sweeps]
	}
	r.sweeps++
	r.mu.Unlock()

	go func() {
		defer close(entries)
		for _, e := range batch {
			select {
			case entries <- e:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return nil
}

func (r *fakeResolver) Lookup(ctx context.Context, instance, _, _ string, entries chan<- *zeroconf.ServiceEntry) error {
	r.mu.Lock()
	r.lookedUp = append(r.lookedUp, instance)
	found := r.lookup[instance]
	r.mu.Unlock()

	go func() {
		defer close(entries)
		if found != nil {
			select {
			case entries <- found:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return nil
}

func newTestProvider(r *fakeResolver) *MDNSProvider {
	p := NewMDNSProvider()
	p.SweepInterval = 50 * time.Millisecond
	p.ResolveTimeout = 50 * time.Millisecond
	p.newResolver = func() (resolver, error) { return r, nil }
	return p
}

// recordingHandler records callbacks in arrival order.
type recordingHandler struct {
	mu       sync.Mutex
	resolved []Device
	removed  []string
}

func (h *recordingHandler) OnResolved(name, address string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resolved = append(h.resolved, Device{Name: name, Address: address})
}

func (h *recordingHandler) OnRemoved(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removed = append(h.removed, name)
}

func (h *recordingHandler) snapshot() ([]Device, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Device(nil), h.resolved...), append([]string(nil), h.removed...)
}

func TestNewMDNSProvider(t *testing.T) {
	p := NewMDNSProvider()

	if p.Service != "_neopixel._tcp" {
		t.Errorf("Service = %q", p.Service)
	}
	if p.Domain != "local." {
		t.Errorf("Domain = %q", p.Domain)
	}
	if p.ResolveTimeout != 5*time.Second {
		t.Errorf("ResolveTimeout = %v, want 5s", p.ResolveTimeout)
	}
	if p.SweepInterval != DefaultSweepInterval {
		t.Errorf("SweepInterval = %v", p.SweepInterval)
	}
}

func TestFirstIPv4(t *testing.T) {
	tests := []struct {
		name   string
		entry  *zeroconf.ServiceEntry
		want   string
		wantOK bool
	}{
		{"single", entry("m", "192.168.1.130"), "192.168.1.130", true},
		{"first wins", entry("m", "10.0.0.1", "10.0.0.2"), "10.0.0.1", true},
		{"none", entry("m"), "", false},
		{"unspecified skipped", entry("m", "0.0.0.0", "10.0.0.3"), "10.0.0.3", true},
		{"nil entry", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := firstIPv4(tt.entry)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("firstIPv4() = %q, %v, want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestUnescapeInstance(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"neopixel-4f2a", "neopixel-4f2a"},
		{`Living\ Room`, "Living Room"},
		{`a\.b`, "a.b"},
		{`back\\slash`, `back\slash`},
	}
	for _, tt := range tests {
		if got := unescapeInstance(tt.in); got != tt.want {
			t.Errorf("unescapeInstance(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSweepTracker(t *testing.T) {
	tr := newSweepTracker(2)

	if gone := tr.endSweep(map[string]bool{"A": true, "B": true}); len(gone) != 0 {
		t.Fatalf("sweep 1 gone = %v", gone)
	}
	if gone := tr.endSweep(map[string]bool{"A": true}); len(gone) != 0 {
		t.Fatalf("one missed sweep should not remove: %v", gone)
	}
	if gone := tr.endSweep(map[string]bool{"A": true, "B": true}); len(gone) != 0 {
		t.Fatalf("B came back, gone = %v", gone)
	}
	tr.endSweep(map[string]bool{})
	gone := tr.endSweep(map[string]bool{})
	if !reflect.DeepEqual(gone, []string{"A", "B"}) {
		t.Errorf("gone = %v, want [A B]", gone)
	}
	if gone := tr.endSweep(map[string]bool{}); len(gone) != 0 {
		t.Errorf("removed names should be forgotten, got %v", gone)
	}
}

func TestMDNSProvider_Scan(t *testing.T) {
	r := &fakeResolver{
		browse: [][]*zeroconf.ServiceEntry{{
			entry("matrix-b", "10.0.0.2"),
			entry("matrix-a", "10.0.0.1"),
			entry("matrix-a", "10.0.0.1"),
		}},
	}
	p := newTestProvider(r)

	devices, err := p.Scan(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	want := []Device{
		{Name: "matrix-a", Address: "10.0.0.1"},
		{Name: "matrix-b", Address: "10.0.0.2"},
	}
	if !reflect.DeepEqual(devices, want) {
		t.Errorf("Scan() = %v, want %v", devices, want)
	}
}

func TestMDNSProvider_ResolvesByLookup(t *testing.T) {
	r := &fakeResolver{
		browse: [][]*zeroconf.ServiceEntry{{entry("bare")}},
		lookup: map[string]*zeroconf.ServiceEntry{"bare": entry("bare", "10.0.0.9")},
	}
	p := newTestProvider(r)

	devices, err := p.Scan(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(devices) != 1 || devices[0].Address != "10.0.0.9" {
		t.Errorf("Scan() = %v, want bare at 10.0.0.9", devices)
	}
}

func TestMDNSProvider_AbandonsUnresolved(t *testing.T) {
	r := &fakeResolver{
		browse: [][]*zeroconf.ServiceEntry{{entry("ghost"), entry("real", "10.0.0.1")}},
	}
	p := newTestProvider(r)

	devices, err := p.Scan(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(devices) != 1 || devices[0].Name != "real" {
		t.Errorf("Scan() = %v, want only real", devices)
	}
	if len(r.lookedUp) != 1 || r.lookedUp[0] != "ghost" {
		t.Errorf("lookups = %v, want [ghost]", r.lookedUp)
	}
}

func TestMDNSProvider_BrowseError(t *testing.T) {
	r := &fakeResolver{browseErr: errors.New("no multicast interface")}
	p := newTestProvider(r)

	if _, err := p.Scan(context.Background(), 50*time.Millisecond); err == nil {
		t.Error("Scan() should fail when browsing cannot start")
	}
	if err := p.Browse(context.Background(), &recordingHandler{}); err == nil {
		t.Error("Browse() should fail when browsing cannot start")
	}
}

func TestMDNSProvider_ResolverError(t *testing.T) {
	p := NewMDNSProvider()
	p.newResolver = func() (resolver, error) { return nil, errors.New("socket: permission denied") }

	if err := p.Browse(context.Background(), &recordingHandler{}); err == nil {
		t.Error("Browse() should report resolver creation failure")
	}
}

func TestMDNSProvider_BrowseReportsRemovals(t *testing.T) {
	r := &fakeResolver{
		browse: [][]*zeroconf.ServiceEntry{
			{entry("A", "10.0.0.1"), entry("B", "10.0.0.2")},
			{entry("A", "10.0.0.1")},
			{entry("A", "10.0.0.1")},
		},
	}
	p := newTestProvider(r)
	h := &recordingHandler{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Browse(ctx, h) }()

	deadline := time.After(3 * time.Second)
	for {
		_, removed := h.snapshot()
		if len(removed) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("B was never reported as removed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Browse() after cancel = %v, want nil", err)
	}

	resolved, removed := h.snapshot()
	if removed[0] != "B" {
		t.Errorf("first removal = %q, want B", removed[0])
	}
	if len(resolved) < 2 {
		t.Errorf("resolved = %v, want at least A and B", resolved)
	}
}

func TestMDNSProvider_SessionIntegration(t *testing.T) {
	r := &fakeResolver{
		browse: [][]*zeroconf.ServiceEntry{{entry("matrix", "192.168.1.130")}},
	}
	s := NewSession(newTestProvider(r))
	defer s.Close()

	s.StartBrowsing()

	deadline := time.After(3 * time.Second)
	for {
		if devices := s.Devices(); len(devices) > 0 {
			if devices[0] != (Device{Name: "matrix", Address: "192.168.1.130"}) {
				t.Errorf("Devices() = %v", devices)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("device never appeared in the session")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
