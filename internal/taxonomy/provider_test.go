package taxonomy

import (
	"context"
	"errors"
	"testing"
)

// mockLister implements Lister with a func field, so each test controls the
// store side directly.
type mockLister struct {
	categoriesFunc func(ctx context.Context) ([]Category, error)
}

func (m *mockLister) Categories(ctx context.Context) ([]Category, error) {
	return m.categoriesFunc(ctx)
}

func TestFallbackUsesStoreWhenPopulated(t *testing.T) {
	stored := []Category{{Name: "Custom", Subcategories: []string{"Only"}}}
	lister := &mockLister{
		categoriesFunc: func(ctx context.Context) ([]Category, error) {
			return stored, nil
		},
	}

	provider := NewFallback(NewStoreProvider(lister), Static())

	set, err := provider.Taxonomy(context.Background())
	if err != nil {
		t.Fatalf("Taxonomy returned error: %v", err)
	}
	if len(set.Categories()) != 1 || set.Categories()[0].Name != "Custom" {
		t.Errorf("expected stored taxonomy to win, got %+v", set.Categories())
	}
}

func TestFallbackOnEmptyStore(t *testing.T) {
	lister := &mockLister{
		categoriesFunc: func(ctx context.Context) ([]Category, error) {
			return nil, nil
		},
	}

	provider := NewFallback(NewStoreProvider(lister), Static())

	set, err := provider.Taxonomy(context.Background())
	if err != nil {
		t.Fatalf("Taxonomy returned error: %v", err)
	}
	if len(set.Categories()) != 10 {
		t.Errorf("expected static fallback with 10 categories, got %d", len(set.Categories()))
	}
}

func TestFallbackOnStoreError(t *testing.T) {
	lister := &mockLister{
		categoriesFunc: func(ctx context.Context) ([]Category, error) {
			return nil, errors.New("connection refused")
		},
	}

	provider := NewFallback(NewStoreProvider(lister), Static())

	set, err := provider.Taxonomy(context.Background())
	if err != nil {
		t.Fatalf("fallback must absorb store errors, got: %v", err)
	}
	if set.Empty() {
		t.Error("expected static fallback, got empty set")
	}
}

func TestCacheMemoizesUntilInvalidated(t *testing.T) {
	calls := 0
	lister := &mockLister{
		categoriesFunc: func(ctx context.Context) ([]Category, error) {
			calls++
			return []Category{{Name: "V1", Subcategories: []string{"S"}}}, nil
		},
	}

	cache := NewCache(NewFallback(NewStoreProvider(lister), Static()))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := cache.Taxonomy(ctx); err != nil {
			t.Fatalf("Taxonomy call %d returned error: %v", i+1, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single store read while cached, got %d", calls)
	}

	cache.Invalidate()

	if _, err := cache.Taxonomy(ctx); err != nil {
		t.Fatalf("Taxonomy after Invalidate returned error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected a fresh store read after Invalidate, got %d total calls", calls)
	}
}

func TestCacheDoesNotStoreFailedResolution(t *testing.T) {
	calls := 0
	failing := &mockLister{
		categoriesFunc: func(ctx context.Context) ([]Category, error) {
			calls++
			return nil, errors.New("down")
		},
	}

	// No fallback layer here: the cache sees the raw store error.
	cache := NewCache(NewStoreProvider(failing))
	ctx := context.Background()

	if _, err := cache.Taxonomy(ctx); err == nil {
		t.Fatal("expected error from failing store")
	}
	if _, err := cache.Taxonomy(ctx); err == nil {
		t.Fatal("expected error again, cache must not memoize failures")
	}
	if calls != 2 {
		t.Errorf("expected 2 store reads, got %d", calls)
	}
}
