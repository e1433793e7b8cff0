// Package resolver assigns each locally-found addon id to at most one
// verified source across the registered providers.
package resolver

import (
	"context"
	"log/slog"

	"github.com/wowsync/wowsync/internal/provider"
)

// Result is one resolution pass's outcome: the id-to-source assignment
// plus the ids no provider could satisfy.
type Result struct {
	// IDs holds the requested ids in input order.
	IDs []string
	// Assigned maps addon id to its resolved source.
	Assigned map[string]provider.Source
	// Skipped lists the unassigned ids in input order.
	Skipped []string
}

// Sources returns the distinct assigned sources, ordered by provider
// registration order and then by first-assigned id.
func (r *Result) Sources(reg *provider.Registry) []provider.Source {
	seen := make(map[provider.Source]bool)
	var out []provider.Source
	for _, pname := range reg.Names() {
		for _, id := range r.IDs {
			src, ok := r.Assigned[id]
			if !ok || src.ProviderName() != pname || seen[src] {
				continue
			}
			seen[src] = true
			out = append(out, src)
		}
	}
	return out
}

// Resolver drives per-provider discovery and merges the results.
type Resolver struct {
	registry *provider.Registry
	logger   *slog.Logger
}

// New creates a resolver over the registered providers.
func New(reg *provider.Registry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{registry: reg, logger: logger}
}

// Resolve asks each provider, in registration order, to discover sources
// for the still-unassigned ids and assigns each id to the first source
// that supplies it. An id satisfied by an earlier-registered provider is
// never re-attempted by a later one. A provider whose discovery fails
// contributes zero sources for the pass; the batch never aborts because
// of one unreachable provider.
func (r *Resolver) Resolve(ctx context.Context, ids []string) *Result {
	res := &Result{
		IDs:      append([]string(nil), ids...),
		Assigned: make(map[string]provider.Source),
	}
	remaining := append([]string(nil), ids...)

	for _, p := range r.registry.All() {
		if len(remaining) == 0 {
			break
		}

		sources, err := p.Discover(ctx, remaining)
		if err != nil {
			r.logger.Warn("provider discovery failed, contributing no sources", "provider", p.Name(), "error", err)
			continue
		}
		r.logger.Debug("provider discovered sources", "provider", p.Name(), "sources", len(sources))

		var unassigned []string
		for _, id := range remaining {
			src := r.match(ctx, id, sources)
			if src == nil {
				unassigned = append(unassigned, id)
				continue
			}
			res.Assigned[id] = src
			r.logger.Info("resolved addon", "addon", id, "provider", p.Name(), "source", src.Name())
		}
		remaining = unassigned
	}

	res.Skipped = remaining
	for _, id := range remaining {
		r.logger.Info("addon not resolved by any provider", "addon", id)
	}
	return res
}

// match returns the first source supplying id, case-sensitively. Addon
// lists are memoized per source, so repeated membership checks are cheap.
func (r *Resolver) match(ctx context.Context, id string, sources []provider.Source) provider.Source {
	for _, src := range sources {
		names, err := src.Addons(ctx)
		if err != nil {
			r.logger.Debug("source addon listing failed", "source", src.Name(), "error", err)
			continue
		}
		for _, n := range names {
			if n == id {
				return src
			}
		}
	}
	return nil
}
