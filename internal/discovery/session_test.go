package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// fakeProvider hands every browse's Handler to the test and blocks until the
// browse is cancelled.
type fakeProvider struct {
	started   chan Handler
	cancelled chan struct{}
	err       error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		started:   make(chan Handler, 8),
		cancelled: make(chan struct{}, 8),
	}
}

func (p *fakeProvider) Browse(ctx context.Context, h Handler) error {
	if p.err != nil {
		return p.err
	}
	p.started <- h
	<-ctx.Done()
	p.cancelled <- struct{}{}
	return nil
}

func (p *fakeProvider) nextHandler(t *testing.T) Handler {
	t.Helper()
	select {
	case h := <-p.started:
		return h
	case <-time.After(2 * time.Second):
		t.Fatal("provider was never started")
		return nil
	}
}

func TestSession_StartBrowsingClearsList(t *testing.T) {
	provider := newFakeProvider()
	s := NewSession(provider)
	defer s.Close()

	s.OnResolved("matrix-a", "10.0.0.1")
	s.OnResolved("matrix-b", "10.0.0.2")
	if got := len(s.Devices()); got != 2 {
		t.Fatalf("len(Devices()) = %d, want 2", got)
	}

	s.StartBrowsing()
	if got := len(s.Devices()); got != 0 {
		t.Errorf("len(Devices()) after StartBrowsing = %d, want 0", got)
	}
	provider.nextHandler(t)
}

func TestSession_RestartCancelsPreviousBrowse(t *testing.T) {
	provider := newFakeProvider()
	s := NewSession(provider)
	defer s.Close()

	s.StartBrowsing()
	provider.nextHandler(t)
	s.StartBrowsing()
	provider.nextHandler(t)

	select {
	case <-provider.cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("first browse was not cancelled")
	}
}

func TestSession_DropsResultsFromStaleBrowse(t *testing.T) {
	provider := newFakeProvider()
	s := NewSession(provider)
	defer s.Close()

	s.StartBrowsing()
	stale := provider.nextHandler(t)
	s.StartBrowsing()
	current := provider.nextHandler(t)

	stale.OnResolved("old", "10.0.0.1")
	current.OnResolved("new", "10.0.0.2")
	stale.OnRemoved("new")

	got := s.Devices()
	want := []Device{{Name: "new", Address: "10.0.0.2"}}
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("Devices() = %v, want %v", got, want)
	}
}

func TestSession_ProviderErrorIsAbsorbed(t *testing.T) {
	provider := newFakeProvider()
	provider.err = errors.New("no multicast interface")
	s := NewSession(provider)
	defer s.Close()

	s.StartBrowsing()
	s.SetManualAddress("192.168.1.50")

	if d, ok := s.Selected(); !ok || d != ManualDevice("192.168.1.50") {
		t.Errorf("Selected() = %v, %v", d, ok)
	}
	if len(s.Devices()) != 0 {
		t.Error("a failed browse should leave the list empty")
	}
}

func TestSession_Scenario(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()

	s.StartBrowsing()
	s.OnResolved("A", "10.0.0.1")
	s.OnResolved("B", "10.0.0.2")
	s.Select(Device{Name: "A", Address: "10.0.0.1"})
	s.OnRemoved("A")

	got := s.Devices()
	if len(got) != 1 || got[0] != (Device{Name: "B", Address: "10.0.0.2"}) {
		t.Errorf("Devices() = %v, want [B]", got)
	}
	if d, ok := s.Selected(); !ok || d.Name != "A" {
		t.Errorf("Selected() = %v, %v, want A", d, ok)
	}
	if addr, ok := s.SelectedAddress(); !ok || addr != "10.0.0.1" {
		t.Errorf("SelectedAddress() = %q, %v", addr, ok)
	}
}

func TestSession_SetManualAddress(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()

	s.SetManualAddress("")
	if _, ok := s.Selected(); ok {
		t.Fatal("empty manual address should not select anything")
	}

	s.OnResolved("A", "10.0.0.1")
	s.SetManualAddress("192.168.1.50")

	d, ok := s.Selected()
	if !ok || d.Name != ManualName || d.Address != "192.168.1.50" {
		t.Errorf("Selected() = %v, %v", d, ok)
	}
	if got := s.Devices(); len(got) != 1 || got[0].Name != "A" {
		t.Errorf("manual selection changed the list: %v", got)
	}
}

func TestSession_ConcurrentResolutionsNoDuplicates(t *testing.T) {
	provider := newFakeProvider()
	s := NewSession(provider)
	defer s.Close()

	s.StartBrowsing()
	h := provider.nextHandler(t)

	pairs := []Device{
		{Name: "m", Address: "10.0.0.1"},
		{Name: "m", Address: "10.0.0.2"},
		{Name: "n", Address: "10.0.0.1"},
	}

	const workers = 16
	const rounds = 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				d := pairs[(w+i)%len(pairs)]
				if (w+i)%2 == 0 {
					h.OnResolved(d.Name, d.Address)
				} else {
					s.OnResolved(d.Name, d.Address)
				}
			}
		}(w)
	}
	wg.Wait()

	got := s.Devices()
	seen := make(map[Device]bool)
	for _, d := range got {
		if seen[d] {
			t.Fatalf("duplicate %v in %v", d, got)
		}
		seen[d] = true
	}
	if len(got) != len(pairs) {
		t.Errorf("Devices() = %v, want each of %v once", got, pairs)
	}
	for _, d := range pairs {
		if !seen[d] {
			t.Errorf("Devices() is missing %v", d)
		}
	}
}

func TestSession_NoSelection(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()

	if _, ok := s.SelectedAddress(); ok {
		t.Error("new session should have no selection")
	}
}

func TestSession_Events(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()

	events, stop := s.Subscribe()
	defer stop()

	s.StartBrowsing()
	s.OnResolved("A", "10.0.0.1")
	s.OnResolved("A", "10.0.0.1")
	s.Select(Device{Name: "A", Address: "10.0.0.1"})
	s.OnRemoved("A")

	want := []EventKind{ListCleared, DeviceAdded, SelectionChanged, DeviceRemoved}
	for i, kind := range want {
		select {
		case ev := <-events:
			if ev.Kind != kind {
				t.Errorf("event %d = %v, want %v", i, ev.Kind, kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event %d (%v)", i, kind)
		}
	}
}

func TestSession_CallsAfterCloseDoNotBlock(t *testing.T) {
	s := NewSession(newFakeProvider())
	s.StartBrowsing()
	s.Close()
	s.Close()

	done := make(chan struct{})
	go func() {
		s.OnResolved("A", "10.0.0.1")
		s.Select(Device{Name: "A"})
		_ = s.Devices()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("calls on a closed session blocked")
	}
}

func TestEventKind_String(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{DeviceAdded, "added"},
		{DeviceRemoved, "removed"},
		{ListCleared, "cleared"},
		{SelectionChanged, "selected"},
		{EventKind(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("EventKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

var (
	propNames     = []string{"A", "B", "C"}
	propAddresses = []string{"10.0.0.1", "10.0.0.2"}
)

// drawDevices draws a sequence of resolutions over a small name and address
// space so duplicates are common.
func drawDevices(t *rapid.T) []Device {
	n := rapid.IntRange(0, 20).Draw(t, "resolutions")
	out := make([]Device, n)
	for i := range out {
		out[i] = Device{
			Name:    rapid.SampledFrom(propNames).Draw(t, "name"),
			Address: rapid.SampledFrom(propAddresses).Draw(t, "address"),
		}
	}
	return out
}

func TestSession_PropertyNoDuplicates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewSession(nil)
		defer s.Close()

		var want []Device
		for _, d := range drawDevices(t) {
			s.OnResolved(d.Name, d.Address)
			if !containsDevice(want, d) {
				want = append(want, d)
			}
		}

		got := s.Devices()
		if len(got) != len(want) {
			t.Fatalf("Devices() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("Devices()[%d] = %v, want %v", i, got[i], want[i])
			}
		}
	})
}

func TestSession_PropertyRemoveByName(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewSession(nil)
		defer s.Close()

		for _, d := range drawDevices(t) {
			s.OnResolved(d.Name, d.Address)
		}
		before := s.Devices()
		name := rapid.SampledFrom(propNames).Draw(t, "removed")

		s.OnRemoved(name)

		var want []Device
		for _, d := range before {
			if d.Name != name {
				want = append(want, d)
			}
		}
		got := s.Devices()
		if len(got) != len(want) {
			t.Fatalf("after OnRemoved(%q): Devices() = %v, want %v", name, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("order not preserved: %v, want %v", got, want)
			}
		}
	})
}

func TestSession_PropertySelectionSurvivesListChanges(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewSession(nil)
		defer s.Close()

		selected := Device{
			Name:    rapid.SampledFrom(propNames).Draw(t, "selectedName"),
			Address: rapid.SampledFrom(propAddresses).Draw(t, "selectedAddress"),
		}
		s.Select(selected)

		steps := rapid.IntRange(0, 20).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			name := rapid.SampledFrom(propNames).Draw(t, "name")
			if rapid.Bool().Draw(t, "remove") {
				s.OnRemoved(name)
			} else {
				s.OnResolved(name, rapid.SampledFrom(propAddresses).Draw(t, "address"))
			}
		}

		if d, ok := s.Selected(); !ok || d != selected {
			t.Fatalf("Selected() = %v, %v, want %v", d, ok, selected)
		}
	})
}

func TestSession_PropertyManualAddress(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewSession(nil)
		defer s.Close()

		for _, d := range drawDevices(t) {
			s.OnResolved(d.Name, d.Address)
		}
		before := s.Devices()
		address := rapid.StringMatching(`[a-z0-9.:]{1,20}`).Draw(t, "manual")

		s.SetManualAddress(address)

		if d, ok := s.Selected(); !ok || d != ManualDevice(address) {
			t.Fatalf("Selected() = %v, %v, want Manual at %q", d, ok, address)
		}
		if got := s.Devices(); len(got) != len(before) {
			t.Fatalf("manual selection changed the list: %v, was %v", got, before)
		}
	})
}

func containsDevice(list []Device, d Device) bool {
	for _, existing := range list {
		if existing == d {
			return true
		}
	}
	return false
}
