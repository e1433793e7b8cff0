// Package provider defines the provider/source abstraction: a Provider
// discovers Sources for requested addon ids, and a Source materializes
// its content into a target directory.
package provider

import (
	"context"
	"log/slog"
)

// PoolWidth is the worker pool width shared by per-id discovery and
// per-source sync. Both phases are network-latency-bound with independent
// units of work; they never run concurrently with each other.
const PoolWidth = 8

// Provider is one remote or local ecosystem capable of supplying Sources.
type Provider interface {
	// Name returns the stable provider identifier (e.g. "curseforge").
	Name() string

	// Metadata describes the provider for reports and logs.
	Metadata() map[string]string

	// Discover returns the Sources relevant to the requested addon ids.
	// A provider with a static source list may ignore ids and return
	// everything it knows. Expected failures (unreachable endpoint)
	// degrade to an error the caller logs; the provider then simply
	// contributes no sources for the pass.
	Discover(ctx context.Context, ids []string) ([]Source, error)
}

// Source is one concrete, addressable origin supplying one or more addons.
type Source interface {
	// Name identifies the source uniquely within its provider.
	Name() string

	// ProviderName returns the owning provider's name.
	ProviderName() string

	// Addons returns the addon ids this source supplies. The list is
	// resolved lazily on first call and cached for the source's
	// lifetime, keeping one resolution pass internally consistent.
	Addons(ctx context.Context) ([]string, error)

	// Sync materializes the source's content into targetDir. It resets
	// and then records its outcome in Status; expected failures are
	// captured there and returned, never panicked.
	Sync(ctx context.Context, targetDir string) error

	// Status returns the source's mutable sync status record.
	Status() *SyncStatus
}

// Registry holds the providers registered for a process run, in
// registration order. It is populated once at startup and read-only
// afterwards.
type Registry struct {
	order     []string
	providers map[string]Provider
	logger    *slog.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		providers: make(map[string]Provider),
		logger:    logger,
	}
}

// Register adds a provider. A name collision is a startup warning; the
// later registration wins while keeping the original position.
func (r *Registry) Register(p Provider) {
	name := p.Name()
	if _, exists := r.providers[name]; exists {
		r.logger.Warn("provider name collision, later registration wins", "provider", name)
	} else {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns the providers in registration order.
func (r *Registry) All() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}
