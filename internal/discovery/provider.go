package discovery

import "context"

// Handler receives discovery results. Calls may arrive from any goroutine.
type Handler interface {
	// OnResolved reports an advertisement that resolved to an address.
	OnResolved(name, address string)

	// OnRemoved reports that the advertisement with this name went away.
	OnRemoved(name string)
}

// Provider is a discovery mechanism the Session can drive. Browse reports
// results to h until ctx is done. It returns nil when ctx ends browsing and
// an error when browsing could not start or continue.
type Provider interface {
	Browse(ctx context.Context, h Handler) error
}
