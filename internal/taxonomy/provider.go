package taxonomy

import (
	"context"
	"sync"
)

// Provider resolves the current taxonomy. Implementations must be safe for
// concurrent use.
type Provider interface {
	Taxonomy(ctx context.Context) (Set, error)
}

// Lister is the narrow store dependency of the store-backed provider.
// internal/store satisfies it.
type Lister interface {
	Categories(ctx context.Context) ([]Category, error)
}

// StoreProvider resolves the taxonomy from persistent category rows.
type StoreProvider struct {
	lister Lister
}

// NewStoreProvider creates a provider backed by stored taxonomy rows.
func NewStoreProvider(lister Lister) *StoreProvider {
	return &StoreProvider{lister: lister}
}

// Taxonomy implements Provider. An empty store yields an empty Set; the
// fallback layer decides what that means.
func (p *StoreProvider) Taxonomy(ctx context.Context) (Set, error) {
	rows, err := p.lister.Categories(ctx)
	if err != nil {
		return Set{}, err
	}
	return NewSet(rows), nil
}

// Fallback resolves through a primary provider and substitutes a fixed
// fallback set when the primary errors or comes back empty. This is the
// single resolution order: store first, static second.
type Fallback struct {
	primary  Provider
	fallback Set
}

// NewFallback wraps primary with the given fallback set.
func NewFallback(primary Provider, fallback Set) *Fallback {
	return &Fallback{primary: primary, fallback: fallback}
}

// Taxonomy implements Provider. Primary failure is absorbed: taxonomy
// resolution must never block classification.
func (f *Fallback) Taxonomy(ctx context.Context) (Set, error) {
	set, err := f.primary.Taxonomy(ctx)
	if err != nil || set.Empty() {
		return f.fallback, nil
	}
	return set, nil
}

// Cache memoizes a Provider until Invalidate is called. Invalidate must be
// invoked by every code path that mutates stored taxonomy rows.
type Cache struct {
	mu    sync.RWMutex
	inner Provider
	set   Set
	valid bool
}

// NewCache wraps a provider with an invalidation-based cache.
func NewCache(inner Provider) *Cache {
	return &Cache{inner: inner}
}

// Taxonomy implements Provider.
func (c *Cache) Taxonomy(ctx context.Context) (Set, error) {
	c.mu.RLock()
	if c.valid {
		set := c.set
		c.mu.RUnlock()
		return set, nil
	}
	c.mu.RUnlock()

	set, err := c.inner.Taxonomy(ctx)
	if err != nil {
		return Set{}, err
	}

	c.mu.Lock()
	c.set = set
	c.valid = true
	c.mu.Unlock()
	return set, nil
}

// Invalidate drops the cached set so the next read resolves fresh.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.set = Set{}
	c.mu.Unlock()
}

// StaticProvider always returns a fixed set. Tests and the ingest-only CLI
// use it to avoid a store round trip.
type StaticProvider struct {
	set Set
}

// NewStaticProvider wraps a fixed set as a Provider.
func NewStaticProvider(set Set) *StaticProvider {
	return &StaticProvider{set: set}
}

// Taxonomy implements Provider.
func (p *StaticProvider) Taxonomy(ctx context.Context) (Set, error) {
	return p.set, nil
}

var (
	_ Provider = (*StoreProvider)(nil)
	_ Provider = (*Fallback)(nil)
	_ Provider = (*Cache)(nil)
	_ Provider = (*StaticProvider)(nil)
)
