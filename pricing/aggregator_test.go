package pricing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-variation-cache/cache"
	"github.com/goliatone/go-variation-cache/catalog"
	"github.com/goliatone/go-variation-cache/epoch"
)

func TestAggregator_SortsByValue(t *testing.T) {
	f := newFixture(t,
		variation(1, "15", "15", ""),
		variation(2, "5", "5", ""),
		variation(3, "10", "10", ""),
	)
	p := parent()

	set, err := f.aggregator().Prices(context.Background(), p, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"5.00", "10.00", "15.00"}, set.Price.Amounts())
	assert.Equal(t, []int64{2, 3, 1}, set.Price.IDs())
	assert.Equal(t, []string{"5.00", "10.00", "15.00"}, set.RegularPrice.Amounts())
	assert.Equal(t, set, p.Prices)
	assert.Empty(t, p.PricesIncludingTax.Price)
}

func TestAggregator_SaleCollapse(t *testing.T) {
	f := newFixture(t,
		variation(1, "8", "10", "8"),
		variation(2, "10", "10", "8"),
		variation(3, "10", "10", "10"),
	)

	set, err := f.aggregator().Prices(context.Background(), parent(), false)
	require.NoError(t, err)

	sale, _ := set.SalePrice.Get(1)
	assert.Equal(t, "8.00", sale, "effective sale is kept")
	sale, _ = set.SalePrice.Get(2)
	assert.Equal(t, "10.00", sale, "sale not applied as price collapses to regular")
	sale, _ = set.SalePrice.Get(3)
	assert.Equal(t, "10.00", sale)
	assert.True(t, set.IsOnSale())
}

func TestAggregator_SkipsUnsetPrice(t *testing.T) {
	f := newFixture(t,
		variation(1, "", "12", ""),
		variation(2, "9", "9", ""),
	)

	set, err := f.aggregator().Prices(context.Background(), parent(), false)
	require.NoError(t, err)

	for _, m := range []catalog.PriceMap{set.Price, set.RegularPrice, set.SalePrice} {
		_, ok := m.Get(1)
		assert.False(t, ok)
		assert.Len(t, m, 1)
	}
}

func TestAggregator_ZeroIsAPrice(t *testing.T) {
	f := newFixture(t, variation(1, "0", "0", ""))

	set, err := f.aggregator().Prices(context.Background(), parent(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"0.00"}, set.Price.Amounts())
}

func TestAggregator_EmptyVisibleSet(t *testing.T) {
	f := newFixture(t)

	set, err := f.aggregator().Prices(context.Background(), parent(), false)
	require.NoError(t, err)

	assert.NotNil(t, set.Price)
	assert.Empty(t, set.Price)
	assert.Empty(t, set.RegularPrice)
	assert.Empty(t, set.SalePrice)
}

func TestAggregator_SkipsMissingVariation(t *testing.T) {
	f := newFixture(t, variation(1, "4", "4", ""))
	f.children.sets[1] = catalog.ChildSet{All: []int64{1, 99}, Visible: []int64{1, 99}}

	set, err := f.aggregator().Prices(context.Background(), parent(), false)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, set.Price.IDs())
}

func TestAggregator_ChildResolveFailure(t *testing.T) {
	f := newFixture(t)
	f.children.err = errors.New("query timeout")

	_, err := f.aggregator().Prices(context.Background(), parent(), false)
	assert.EqualError(t, err, "query timeout")
}

func TestAggregator_PersistentHitAndEpochInvalidation(t *testing.T) {
	ctx := context.Background()
	v := variation(1, "10", "10", "")
	f := newFixture(t, v)

	first, err := f.aggregator().Prices(ctx, parent(), false)
	require.NoError(t, err)
	require.Equal(t, []string{"10.00"}, first.Price.Amounts())

	v.Price = catalog.MustAmount("7")
	v.RegularPrice = catalog.MustAmount("7")

	cached, err := f.aggregator().Prices(ctx, parent(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.00"}, cached.Price.Amounts(), "fresh aggregator reuses the persisted bundle")

	token, err := f.epochs.Bump(ctx, epoch.DomainProduct)
	require.NoError(t, err)

	fresh, err := f.aggregator().Prices(ctx, parent(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"7.00"}, fresh.Price.Amounts())

	bundle, err := cache.Get[Bundle](ctx, f.store, cache.PricesKey(1))
	require.NoError(t, err)
	assert.Equal(t, token, bundle.Version)
	assert.Len(t, bundle.Sets, 1, "stale sets are dropped with the old epoch")
}

// advancingEpochs returns a new token on every read, as if another process
// bumped the epoch between any two lookups.
type advancingEpochs struct {
	reads int
}

func (e *advancingEpochs) Current(ctx context.Context, domain string) (string, error) {
	e.reads++
	return fmt.Sprintf("epoch-%d", e.reads), nil
}

func TestAggregator_TagsBundleWithFingerprintEpoch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, variation(1, "10", "10", ""))
	epochs := &advancingEpochs{}

	agg := NewAggregator(Dependencies{
		Fingerprints: NewFingerprintBuilder(f.tax, f.filters, epochs),
		Children:     f.children,
		Variations:   f.vars,
		Filters:      f.filters,
		Tax:          f.tax,
		Store:        f.store,
	})

	_, err := agg.Prices(ctx, parent(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, epochs.reads, "one epoch read per lookup")

	bundle, err := cache.Get[Bundle](ctx, f.store, cache.PricesKey(1))
	require.NoError(t, err)
	assert.Equal(t, "epoch-1", bundle.Version)
}

func TestAggregator_BundleHoldsOneSetPerFingerprint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, variation(1, "10", "10", ""))
	agg := f.aggregator()

	_, err := agg.Prices(ctx, parent(), false)
	require.NoError(t, err)
	incl, err := agg.Prices(ctx, parent(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"12.00"}, incl.Price.Amounts())

	bundle, err := cache.Get[Bundle](ctx, f.store, cache.PricesKey(1))
	require.NoError(t, err)
	assert.Len(t, bundle.Sets, 2)
}

func TestAggregator_MemoSkipsRecompute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, variation(1, "10", "10", ""))
	agg := f.aggregator()

	_, err := agg.Prices(ctx, parent(), false)
	require.NoError(t, err)
	require.NoError(t, f.store.Delete(ctx, cache.PricesKey(1)))

	_, err = agg.Prices(ctx, parent(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.children.calls)

	agg.Reset()
	_, err = agg.Prices(ctx, parent(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.children.calls)
}

func TestAggregator_MemoIsScopedByParent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, variation(1, "10", "10", ""))
	f.vars[20] = variation(20, "99", "99", "")
	f.children.sets[2] = catalog.ChildSet{All: []int64{20}, Visible: []int64{20}}
	agg := f.aggregator()

	first, err := agg.Prices(ctx, parent(), false)
	require.NoError(t, err)
	second, err := agg.Prices(ctx, &catalog.Product{ID: 2}, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"10.00"}, first.Price.Amounts())
	assert.Equal(t, []string{"99.00"}, second.Price.Amounts())
}

func TestAggregator_CacheOutage(t *testing.T) {
	f := newFixture(t, variation(1, "10", "10", ""))
	f.store.down = true

	set, err := f.aggregator().Prices(context.Background(), parent(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.00"}, set.Price.Amounts())
	assert.Zero(t, f.store.sets, "no write after a failed read")
}

func TestAggregator_WriteFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, variation(1, "10", "10", ""))
	agg := f.aggregator()
	agg.store = failingWrites{f.store}

	set, err := agg.Prices(ctx, parent(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.00"}, set.Price.Amounts())
}

type failingWrites struct {
	cache.Store
}

func (failingWrites) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return cache.NewUnavailableError(key, "read only replica", nil)
}

func TestAggregator_MalformedBundleIsRecomputed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, variation(1, "10", "10", ""))
	require.NoError(t, f.store.Store.Set(ctx, cache.PricesKey(1), []byte{0xc1}, time.Minute))

	set, err := f.aggregator().Prices(ctx, parent(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.00"}, set.Price.Amounts())

	_, err = cache.Get[Bundle](ctx, f.store, cache.PricesKey(1))
	assert.NoError(t, err, "malformed entry is overwritten")
}

func TestAggregator_FiltersAndTaxes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, variation(1, "10", "10", "8"))
	f.filters.Add(HookPrice, "member_discount", 10, func(ctx context.Context, value catalog.Amount, v *catalog.Variation, p *catalog.Product) catalog.Amount {
		return catalog.MustAmount("8")
	})
	tax, err := NewStaticTax(DisplayInclusive, false, []TaxRate{{Class: "", Rate: mustDecimal("25")}})
	require.NoError(t, err)
	f.tax = tax

	p := parent()
	set, err := f.aggregator().Prices(ctx, p, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"10.00"}, set.Price.Amounts())
	assert.Equal(t, []string{"12.50"}, set.RegularPrice.Amounts())
	assert.Equal(t, []string{"10.00"}, set.SalePrice.Amounts())
	assert.Equal(t, set, p.PricesIncludingTax)
}

func TestAggregator_ExclusiveDisplayStripsIncludedTax(t *testing.T) {
	f := newFixture(t, variation(1, "12", "12", ""))
	tax, err := NewStaticTax(DisplayExclusive, true, []TaxRate{{Class: "", Rate: mustDecimal("20")}})
	require.NoError(t, err)
	f.tax = tax

	set, err := f.aggregator().Prices(context.Background(), parent(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.00"}, set.Price.Amounts())
}

func TestAggregator_BundleFilterOnlyAffectsMemo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, variation(1, "10", "10", ""))
	agg := f.aggregator(WithBundleFilter(func(ctx context.Context, set catalog.PriceSet, p *catalog.Product, includeTaxes bool) catalog.PriceSet {
		out := set.Clone()
		out.Price = catalog.PriceMap{{VariationID: 1, Amount: "1.00"}}
		return out
	}))

	set, err := agg.Prices(ctx, parent(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.00"}, set.Price.Amounts())

	again, err := agg.Prices(ctx, parent(), false)
	require.NoError(t, err)
	assert.Equal(t, set, again)

	bundle, err := cache.Get[Bundle](ctx, f.store, cache.PricesKey(1))
	require.NoError(t, err)
	for _, stored := range bundle.Sets {
		assert.Equal(t, []string{"10.00"}, stored.Price.Amounts())
	}
}

func TestAggregator_Decimals(t *testing.T) {
	f := newFixture(t, variation(1, "10.5", "10.5", ""))

	set, err := f.aggregator(WithDecimals(3)).Prices(context.Background(), parent(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.500"}, set.Price.Amounts())
}

func TestAggregator_InvalidFingerprintInput(t *testing.T) {
	f := newFixture(t, variation(1, "10", "10", ""))
	f.tax = brokenTax{}

	_, err := f.aggregator().Prices(context.Background(), parent(), true)
	assert.ErrorIs(t, err, ErrInvalidFingerprintInput)

	_, err = f.aggregator().Prices(context.Background(), parent(), false)
	assert.NoError(t, err, "tax inputs are not read without taxes")
}
