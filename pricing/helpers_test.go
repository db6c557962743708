package pricing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-variation-cache/cache"
	"github.com/goliatone/go-variation-cache/catalog"
	"github.com/goliatone/go-variation-cache/epoch"
)

type stubChildren struct {
	mu    sync.Mutex
	sets  map[int64]catalog.ChildSet
	err   error
	calls int
}

func (s *stubChildren) Resolve(ctx context.Context, p *catalog.Product, force bool) (catalog.ChildSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return catalog.ChildSet{}, s.err
	}
	return s.sets[p.ID], nil
}

type variationMap map[int64]*catalog.Variation

func (m variationMap) Variation(ctx context.Context, id int64) (*catalog.Variation, error) {
	v, ok := m[id]
	if !ok {
		return nil, catalog.NewVariationNotFound(id)
	}
	return v, nil
}

// spyStore wraps a store, counting writes and optionally failing every call.
type spyStore struct {
	cache.Store
	mu   sync.Mutex
	sets int
	down bool
}

func (s *spyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.down {
		return nil, cache.NewUnavailableError(key, "down", errors.New("connection refused"))
	}
	return s.Store.Get(ctx, key)
}

func (s *spyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.sets++
	s.mu.Unlock()
	if s.down {
		return cache.NewUnavailableError(key, "down", errors.New("connection refused"))
	}
	return s.Store.Set(ctx, key, value, ttl)
}

type brokenTax struct{}

func (brokenTax) DisplayMode(ctx context.Context) (DisplayMode, error) {
	return "", errors.New("tax settings not loaded")
}
func (brokenTax) Rates(ctx context.Context) ([]TaxRate, error) { return nil, errors.New("rates locked") }
func (brokenTax) PricesIncludeTax(ctx context.Context) (bool, error) {
	return false, errors.New("tax settings not loaded")
}
func (brokenTax) Convert(ctx context.Context, v *catalog.Variation, amount catalog.Amount, qty int, dir Direction) (catalog.Amount, error) {
	return amount, nil
}

func variation(id int64, price, regular, sale string) *catalog.Variation {
	return &catalog.Variation{
		ID:           id,
		ParentID:     1,
		Status:       catalog.StatusPublish,
		Price:        catalog.MustAmount(price),
		RegularPrice: catalog.MustAmount(regular),
		SalePrice:    catalog.MustAmount(sale),
		StockStatus:  catalog.InStock,
	}
}

type fixture struct {
	children *stubChildren
	vars     variationMap
	filters  *FilterRegistry
	tax      TaxService
	epochs   *epoch.MemoryRegistry
	store    *spyStore
}

func newFixture(t *testing.T, vars ...*catalog.Variation) *fixture {
	t.Helper()

	cfg := cache.DefaultConfig()
	cfg.Breaker.Enabled = false
	store, err := cache.NewStore(cfg)
	require.NoError(t, err)

	tax, err := NewStaticTax(DisplayInclusive, false, []TaxRate{{Class: "", Rate: mustDecimal("20")}})
	require.NoError(t, err)

	f := &fixture{
		children: &stubChildren{sets: map[int64]catalog.ChildSet{}},
		vars:     variationMap{},
		filters:  NewFilterRegistry(),
		tax:      tax,
		epochs:   epoch.NewMemoryRegistry(),
		store:    &spyStore{Store: store},
	}

	ids := make([]int64, 0, len(vars))
	for _, v := range vars {
		f.vars[v.ID] = v
		ids = append(ids, v.ID)
	}
	f.children.sets[1] = catalog.ChildSet{All: ids, Visible: ids}
	return f
}

func (f *fixture) builder(opts ...FingerprintOption) *FingerprintBuilder {
	return NewFingerprintBuilder(f.tax, f.filters, f.epochs, opts...)
}

func (f *fixture) aggregator(opts ...AggregatorOption) *Aggregator {
	return NewAggregator(Dependencies{
		Fingerprints: f.builder(),
		Children:     f.children,
		Variations:   f.vars,
		Filters:      f.filters,
		Tax:          f.tax,
		Store:        f.store,
	}, opts...)
}

func parent() *catalog.Product {
	return &catalog.Product{ID: 1, Name: "Shirt"}
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
