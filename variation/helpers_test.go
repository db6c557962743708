package variation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-variation-cache/cache"
	"github.com/goliatone/go-variation-cache/catalog"
	"github.com/goliatone/go-variation-cache/pkg/testsupport"
)

func loadCatalog(t *testing.T) *testsupport.MemoryStore {
	t.Helper()
	return testsupport.LoadCatalog(t, testsupport.FixturePath("variable_products.json"))
}

// testCatalogWithPrices builds parent 1 with one published variation per
// price, ids starting at 1.
func testCatalogWithPrices(t *testing.T, prices ...string) *testsupport.MemoryStore {
	t.Helper()
	c := testsupport.Catalog{Products: []catalog.Product{{ID: 1, Name: "Parent"}}}
	for i, price := range prices {
		c.Variations = append(c.Variations, catalog.Variation{
			ID:          int64(i + 1),
			ParentID:    1,
			MenuOrder:   i,
			Status:      catalog.StatusPublish,
			Price:       catalog.MustAmount(price),
			StockStatus: catalog.InStock,
		})
	}
	return testsupport.NewMemoryStore(c)
}

func memoryStore(t *testing.T) cache.Store {
	t.Helper()
	cfg := cache.DefaultConfig()
	cfg.Breaker.Enabled = false
	store, err := cache.NewStore(cfg)
	require.NoError(t, err)
	return store
}

// countingStore counts writes and can simulate an outage.
type countingStore struct {
	cache.Store
	mu   sync.Mutex
	sets int
	down bool
}

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.down {
		return nil, cache.NewUnavailableError(key, "down", errors.New("connection refused"))
	}
	return s.Store.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.sets++
	s.mu.Unlock()
	if s.down {
		return cache.NewUnavailableError(key, "down", errors.New("connection refused"))
	}
	return s.Store.Set(ctx, key, value, ttl)
}

func (s *countingStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}
