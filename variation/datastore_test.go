package variation

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/goliatone/go-variation-cache/cache"
	"github.com/goliatone/go-variation-cache/catalog"
	"github.com/goliatone/go-variation-cache/epoch"
	"github.com/goliatone/go-variation-cache/pkg/telemetry"
	"github.com/goliatone/go-variation-cache/pkg/testsupport"
	"github.com/goliatone/go-variation-cache/pricing"
)

type dataStoreFixture struct {
	entities *testsupport.MemoryStore
	cache    cache.Store
	epochs   *epoch.MemoryRegistry
	ds       *DataStore
}

func newDataStore(t *testing.T, opts ...Option) *dataStoreFixture {
	t.Helper()

	tax, err := pricing.NewStaticTax(pricing.DisplayInclusive, false, []pricing.TaxRate{
		{Rate: decimal.RequireFromString("20")},
	})
	require.NoError(t, err)

	f := &dataStoreFixture{
		entities: loadCatalog(t),
		cache:    memoryStore(t),
		epochs:   epoch.NewMemoryRegistry(),
	}
	f.ds = NewDataStore(Dependencies{
		Store:  f.entities,
		Cache:  f.cache,
		Epochs: f.epochs,
		Tax:    tax,
	}, opts...)
	return f
}

func TestDataStore_Read(t *testing.T) {
	ctx := context.Background()
	f := newDataStore(t)

	p, err := f.ds.Read(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, []int64{101, 102, 103}, p.Children)
	assert.Equal(t, []int64{101, 102, 103}, p.VisibleChildren)

	assert.Equal(t, []int64{101, 103, 102}, p.Prices.Price.IDs())
	assert.Equal(t, []string{"10.00", "10.00", "15.00"}, p.Prices.Price.Amounts())
	assert.Equal(t, []string{"10.00", "10.00", "20.00"}, p.Prices.RegularPrice.Amounts())
	assert.Equal(t, []string{"10.00", "10.00", "15.00"}, p.Prices.SalePrice.Amounts())
	assert.True(t, p.Prices.IsOnSale())

	assert.Equal(t, []string{"12.00", "12.00", "18.00"}, p.PricesIncludingTax.Price.Amounts())
	assert.Equal(t, []string{"12.00", "12.00", "24.00"}, p.PricesIncludingTax.RegularPrice.Amounts())

	assert.Equal(t, []string{"blue", "red", "green"}, p.VariationAttributes["pa_color"])
	assert.Equal(t, []string{"Small", "Medium", "Extra Large"}, p.VariationAttributes["size"])
}

func TestDataStore_ReadUsesPersistedData(t *testing.T) {
	ctx := context.Background()
	f := newDataStore(t)

	_, err := f.ds.Read(ctx, 1)
	require.NoError(t, err)
	loads := f.entities.Calls("Variation")
	queries := f.entities.Calls("ChildIDs")

	p, err := f.ds.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, loads, f.entities.Calls("Variation"), "price bundle is reused")
	assert.Equal(t, queries, f.entities.Calls("ChildIDs"), "child set is reused")
	from, ok := p.Prices.Price.Min()
	require.True(t, ok)
	assert.Equal(t, "10.00", from)
}

func TestDataStore_Invalidate(t *testing.T) {
	ctx := context.Background()
	f := newDataStore(t)

	_, err := f.ds.Read(ctx, 1)
	require.NoError(t, err)
	before, err := f.epochs.Current(ctx, epoch.DomainProduct)
	require.NoError(t, err)

	v, err := f.entities.Variation(ctx, 101)
	require.NoError(t, err)
	v.Price = catalog.MustAmount("7")
	f.entities.PutVariation(*v)

	token, err := f.ds.Invalidate(ctx, 1)
	require.NoError(t, err)
	assert.Greater(t, token, before)

	p, err := f.ds.Read(ctx, 1)
	require.NoError(t, err)
	first, _ := p.Prices.Price.Min()
	assert.Equal(t, "7.00", first)
}

func TestDataStore_ReadNotFound(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	f := newDataStore(t, WithTracerProvider(tp))

	_, err := f.ds.Read(context.Background(), 404)
	assert.True(t, catalog.IsNotFound(err))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "variation.Read", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestDataStore_ReadRecordsMetrics(t *testing.T) {
	collector, err := telemetry.NewCollector("varcache", prometheus.NewRegistry())
	require.NoError(t, err)
	f := newDataStore(t, WithDataStoreRecorder(collector))

	_, err = f.ds.Read(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Lookups.WithLabelValues(telemetry.CacheChildren, string(telemetry.OutcomeMiss))))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Lookups.WithLabelValues(telemetry.CachePrices, string(telemetry.OutcomeMiss))))
}

func TestDataStore_PresenceChecks(t *testing.T) {
	ctx := context.Background()
	f := newDataStore(t, WithResolverOptions(WithVisibility(StaticVisibility(true))))

	p, err := f.ds.Read(ctx, 1)
	require.NoError(t, err)

	hasWeight, err := f.ds.ChildHasWeight(ctx, p)
	require.NoError(t, err)
	assert.True(t, hasWeight)

	hasDimensions, err := f.ds.ChildHasDimensions(ctx, p)
	require.NoError(t, err)
	assert.False(t, hasDimensions)

	inStock, err := f.ds.ChildIsInStock(ctx, p)
	require.NoError(t, err)
	assert.True(t, inStock)

	legacy, err := f.ds.Read(ctx, 2)
	require.NoError(t, err)
	hasDimensions, err = f.ds.ChildHasDimensions(ctx, legacy)
	require.NoError(t, err)
	assert.True(t, hasDimensions)

	calls := f.entities.Calls("ChildIsInStock")
	inStock, err = f.ds.ChildIsInStock(ctx, &catalog.Product{ID: 3})
	require.NoError(t, err)
	assert.False(t, inStock)
	assert.Equal(t, calls, f.entities.Calls("ChildIsInStock"), "no query without visible children")
}

func TestDataStore_Sync(t *testing.T) {
	ctx := context.Background()
	f := newDataStore(t)

	p, err := f.entities.Product(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, f.ds.Sync(ctx, p))

	v, err := f.entities.Variation(ctx, 102)
	require.NoError(t, err)
	assert.Equal(t, catalog.InStock, v.StockStatus)

	index, err := f.entities.PriceIndex(ctx, 1)
	require.NoError(t, err)
	require.Len(t, index, 2)
	assert.Equal(t, "10", index[0].String())
	assert.Equal(t, "15", index[1].String())

	stored, err := f.entities.Product(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, catalog.InStock, stored.StockStatus)
	assert.Equal(t, []int64{101, 102, 103}, stored.Children)
	assert.Equal(t, 1, f.entities.Calls("SaveProduct"))
}

func TestDataStore_SyncDropsPricesOfHiddenChildren(t *testing.T) {
	ctx := context.Background()
	f := newDataStore(t, WithResolverOptions(WithVisibility(StaticVisibility(true))))

	before, err := f.ds.Read(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []int64{101, 103}, before.VisibleChildren)
	require.ElementsMatch(t, []int64{101, 103}, before.Prices.Price.IDs())

	p, err := f.entities.Product(ctx, 1)
	require.NoError(t, err)
	p.StockStatus = catalog.OutOfStock
	require.NoError(t, f.ds.Sync(ctx, p))

	after, err := f.ds.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{103}, after.VisibleChildren)
	assert.Equal(t, []int64{103}, after.Prices.Price.IDs())
	assert.Equal(t, []int64{103}, after.PricesIncludingTax.Price.IDs())

	_, err = f.cache.Get(ctx, cache.PricesKey(1))
	assert.NoError(t, err, "the recomputed bundle is persisted again")
}

func TestDataStore_SyncKeepsPricesWithoutStockChange(t *testing.T) {
	ctx := context.Background()
	f := newDataStore(t)

	p, err := f.ds.Read(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, f.ds.Sync(ctx, p))
	p, err = f.ds.Read(ctx, 1)
	require.NoError(t, err)
	loads := f.entities.Calls("Variation")

	require.NoError(t, f.ds.Sync(ctx, p))
	_, err = f.ds.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, loads, f.entities.Calls("Variation"), "unchanged stock keeps the price bundle")
}

func TestDataStore_PriceFilters(t *testing.T) {
	ctx := context.Background()
	f := newDataStore(t)

	before, err := f.ds.Read(ctx, 1)
	require.NoError(t, err)

	f.ds.Filters().Add(pricing.HookPrice, "member-discount", 10, func(ctx context.Context, value catalog.Amount, v *catalog.Variation, p *catalog.Product) catalog.Amount {
		return catalog.NewAmount(value.Decimal().Sub(decimal.NewFromInt(1)))
	})

	after, err := f.ds.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.00", "10.00", "15.00"}, before.Prices.Price.Amounts())
	assert.Equal(t, []string{"9.00", "9.00", "14.00"}, after.Prices.Price.Amounts(), "a new filter changes the fingerprint")
}
