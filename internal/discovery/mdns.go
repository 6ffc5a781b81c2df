package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/neopixel/internal/logging"
)

const (
	// ServiceType is the DNS-SD service type advertised by the matrix firmware
	ServiceType = "_neopixel._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultResolveTimeout bounds how long one advertisement may take to resolve
	DefaultResolveTimeout = 5 * time.Second

	// DefaultSweepInterval is the length of one browse window
	DefaultSweepInterval = 15 * time.Second

	// DefaultScanTimeout is the default timeout for a one-shot scan
	DefaultScanTimeout = 5 * time.Second

	// missedSweepLimit is how many consecutive sweeps a name may be absent
	// from before it is reported as removed.
	missedSweepLimit = 2
)

// resolver is the part of *zeroconf.Resolver the provider uses.
type resolver interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
	Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

func newZeroconfResolver() (resolver, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// MDNSProvider browses the local network for matrix advertisements.
//
// zeroconf only reports services as they appear, so browsing runs in
// consecutive sweeps of SweepInterval. A name that is missing from two sweeps
// in a row is reported as removed.
type MDNSProvider struct {
	// Service is the DNS-SD service type to browse for
	Service string

	// Domain is the browse domain
	Domain string

	// ResolveTimeout bounds the address lookup for one advertisement
	ResolveTimeout time.Duration

	// SweepInterval is the length of one browse window
	SweepInterval time.Duration

	newResolver func() (resolver, error)
}

// NewMDNSProvider creates a provider with default settings
func NewMDNSProvider() *MDNSProvider {
	return &MDNSProvider{
		Service:        ServiceType,
		Domain:         ServiceDomain,
		ResolveTimeout: DefaultResolveTimeout,
		SweepInterval:  DefaultSweepInterval,
		newResolver:    newZeroconfResolver,
	}
}

// Browse reports resolved advertisements to h until ctx is done.
func (p *MDNSProvider) Browse(ctx context.Context, h Handler) error {
	logging.Debug("Browsing for devices",
		zap.String("service", p.service()),
		zap.String("domain", p.domain()))

	tracker := newSweepTracker(missedSweepLimit)
	for ctx.Err() == nil {
		seen, err := p.sweep(ctx, p.sweepInterval(), h)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		// A cancelled sweep saw only part of the network.
		if ctx.Err() != nil {
			return nil
		}
		for _, name := range tracker.endSweep(seen) {
			h.OnRemoved(name)
		}
	}
	return nil
}

// sweep browses for one window and returns every instance name it saw.
// Each advertisement is resolved on its own goroutine; the sweep waits for
// all of them before returning.
func (p *MDNSProvider) sweep(ctx context.Context, window time.Duration, h Handler) (map[string]bool, error) {
	r, err := p.resolverFor()
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	sweepCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := r.Browse(sweepCtx, p.service(), p.domain(), entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for entry := range entries {
		name := unescapeInstance(entry.Instance)
		if name == "" {
			continue
		}
		seen[name] = true

		wg.Add(1)
		go func(entry *zeroconf.ServiceEntry, name string) {
			defer wg.Done()
			address, ok := p.resolve(ctx, entry)
			if !ok {
				logging.LogDiscoveryEvent("abandoned", name, "")
				return
			}
			h.OnResolved(name, address)
		}(entry, name)
	}
	wg.Wait()

	return seen, nil
}

// resolve returns the first IPv4 address for entry, looking the instance up
// again when the browse answer carried none. It gives up after ResolveTimeout.
func (p *MDNSProvider) resolve(ctx context.Context, entry *zeroconf.ServiceEntry) (string, bool) {
	if address, ok := firstIPv4(entry); ok {
		return address, true
	}

	r, err := p.resolverFor()
	if err != nil {
		return "", false
	}

	lookupCtx, cancel := context.WithTimeout(ctx, p.resolveTimeout())
	defer cancel()

	results := make(chan *zeroconf.ServiceEntry)
	if err := r.Lookup(lookupCtx, entry.Instance, p.service(), p.domain(), results); err != nil {
		logging.Debug("Lookup failed", zap.String("instance", entry.Instance), zap.Error(err))
		return "", false
	}

	// The resolver blocks on every send until the channel is read, so keep
	// draining after we have an answer until it closes the channel.
	defer func() {
		cancel()
		go func() {
			for range results {
			}
		}()
	}()

	for {
		select {
		case result, ok := <-results:
			if !ok {
				return "", false
			}
			if address, found := firstIPv4(result); found {
				return address, true
			}
		case <-lookupCtx.Done():
			return "", false
		}
	}
}

func (p *MDNSProvider) resolverFor() (resolver, error) {
	if p.newResolver == nil {
		return newZeroconfResolver()
	}
	return p.newResolver()
}

func (p *MDNSProvider) service() string {
	if p.Service == "" {
		return ServiceType
	}
	return p.Service
}

func (p *MDNSProvider) domain() string {
	if p.Domain == "" {
		return ServiceDomain
	}
	return p.Domain
}

func (p *MDNSProvider) resolveTimeout() time.Duration {
	if p.ResolveTimeout <= 0 {
		return DefaultResolveTimeout
	}
	return p.ResolveTimeout
}

func (p *MDNSProvider) sweepInterval() time.Duration {
	if p.SweepInterval <= 0 {
		return DefaultSweepInterval
	}
	return p.SweepInterval
}

// firstIPv4 returns the first IPv4 address carried by entry.
func firstIPv4(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil {
		return "", false
	}
	for _, ip := range entry.AddrIPv4 {
		if v4 := ip.To4(); v4 != nil && !v4.IsUnspecified() {
			return v4.String(), true
		}
	}
	return "", false
}

// unescapeInstance removes DNS-SD escaping from an instance label
// (e.g., `Living\ Room` becomes "Living Room").
func unescapeInstance(instance string) string {
	if !strings.Contains(instance, `\`) {
		return instance
	}
	var b strings.Builder
	escaped := false
	for _, r := range instance {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

// sweepTracker counts how many consecutive sweeps each known name has been
// missing from.
type sweepTracker struct {
	limit  int
	missed map[string]int
}

func newSweepTracker(limit int) *sweepTracker {
	return &sweepTracker{limit: limit, missed: make(map[string]int)}
}

// endSweep records the names seen in a finished sweep and returns, sorted,
// the names that have now been missing for limit sweeps. Those names are
// forgotten.
func (t *sweepTracker) endSweep(seen map[string]bool) []string {
	for name := range seen {
		t.missed[name] = 0
	}

	var gone []string
	for name := range t.missed {
		if seen[name] {
			continue
		}
		t.missed[name]++
		if t.missed[name] >= t.limit {
			gone = append(gone, name)
		}
	}
	for _, name := range gone {
		delete(t.missed, name)
	}
	sort.Strings(gone)
	return gone
}

// Scan browses for timeout and returns every device that resolved, sorted by
// name then address.
func (p *MDNSProvider) Scan(ctx context.Context, timeout time.Duration) ([]Device, error) {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}

	c := &collector{}
	if _, err := p.sweep(ctx, timeout, c); err != nil {
		return nil, err
	}
	return c.devices(), nil
}

// ScanForDevices is a convenience function to scan with default settings and a custom timeout
func ScanForDevices(ctx context.Context, timeout time.Duration) ([]Device, error) {
	return NewMDNSProvider().Scan(ctx, timeout)
}

// collector is a Handler that gathers unique resolved devices.
type collector struct {
	mu    sync.Mutex
	found []Device
}

func (c *collector) OnResolved(name, address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := Device{Name: name, Address: address}
	for _, existing := range c.found {
		if existing == d {
			return
		}
	}
	c.found = append(c.found, d)
}

func (c *collector) OnRemoved(string) {}

func (c *collector) devices() []Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Device, len(c.found))
	copy(out, c.found)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Address < out[j].Address
	})
	return out
}
