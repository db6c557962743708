package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-variation-cache/cache"
	"github.com/goliatone/go-variation-cache/catalog"
	"github.com/goliatone/go-variation-cache/pkg/telemetry"
)

// DefaultDecimals is the precision prices are formatted with.
const DefaultDecimals = 2

// ChildResolver yields a parent's child set.
type ChildResolver interface {
	Resolve(ctx context.Context, p *catalog.Product, force bool) (catalog.ChildSet, error)
}

// VariationReader loads a variation by id.
type VariationReader interface {
	Variation(ctx context.Context, id int64) (*catalog.Variation, error)
}

// BundleFilter gets the last word on a price set before it is memoized.
type BundleFilter func(ctx context.Context, set catalog.PriceSet, p *catalog.Product, includeTaxes bool) catalog.PriceSet

// Bundle is the persisted price entry of a parent: one price set per
// fingerprint, valid for a single epoch.
type Bundle struct {
	Version string                          `msgpack:"version"`
	Sets    map[Fingerprint]catalog.PriceSet `msgpack:"sets"`
}

type memoKey struct {
	parentID    int64
	fingerprint Fingerprint
}

// Aggregator computes the variation price maps of parent products through the
// in-process memo and the persistent bundle.
type Aggregator struct {
	fingerprints  *FingerprintBuilder
	children      ChildResolver
	variations    VariationReader
	filters       FilterApplier
	tax           TaxService
	store         cache.Store
	decimals      int
	ttl           time.Duration
	bundleFilters []BundleFilter
	logger        *zap.Logger
	recorder      telemetry.Recorder

	mu   sync.Mutex
	memo map[memoKey]catalog.PriceSet
}

// Dependencies are the collaborators of an Aggregator.
type Dependencies struct {
	Fingerprints *FingerprintBuilder
	Children     ChildResolver
	Variations   VariationReader
	Filters      FilterApplier
	Tax          TaxService
	Store        cache.Store
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithDecimals sets the formatting precision.
func WithDecimals(places int) AggregatorOption {
	return func(a *Aggregator) {
		if places >= 0 {
			a.decimals = places
		}
	}
}

// WithBundleFilter appends a bundle filter.
func WithBundleFilter(fn BundleFilter) AggregatorOption {
	return func(a *Aggregator) {
		if fn != nil {
			a.bundleFilters = append(a.bundleFilters, fn)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r telemetry.Recorder) AggregatorOption {
	return func(a *Aggregator) {
		if r != nil {
			a.recorder = r
		}
	}
}

// WithTTL sets the lifetime of persisted bundles.
func WithTTL(ttl time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// NewAggregator creates an Aggregator. Create one per parent load, or call
// Reset between parents.
func NewAggregator(deps Dependencies, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		fingerprints: deps.Fingerprints,
		children:     deps.Children,
		variations:   deps.Variations,
		filters:      deps.Filters,
		tax:          deps.Tax,
		store:        deps.Store,
		decimals:     DefaultDecimals,
		ttl:          cache.DefaultTTL,
		logger:       zap.NewNop(),
		recorder:     telemetry.Nop{},
		memo:         make(map[memoKey]catalog.PriceSet),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reset discards the in-process memo.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.memo = make(map[memoKey]catalog.PriceSet)
	a.mu.Unlock()
}

// Prices returns the price set of p's visible variations and assigns it to
// p.Prices or p.PricesIncludingTax. Persistent cache failures never fail the
// call; they are logged and the set is recomputed.
func (a *Aggregator) Prices(ctx context.Context, p *catalog.Product, includeTaxes bool) (catalog.PriceSet, error) {
	basis, err := a.fingerprints.Basis(ctx, p, includeTaxes)
	if err != nil {
		return catalog.PriceSet{}, err
	}
	fp := a.fingerprints.Hash(basis)

	key := memoKey{parentID: p.ID, fingerprint: fp}
	a.mu.Lock()
	set, ok := a.memo[key]
	a.mu.Unlock()
	if ok {
		a.recorder.Lookup(telemetry.CachePrices, telemetry.OutcomeMemoHit)
		p.SetVariationPrices(set, includeTaxes)
		return set, nil
	}

	bundle, writable := a.loadBundle(ctx, p.ID, basis.Epoch)

	set, ok = bundle.Sets[fp]
	if !ok {
		started := time.Now()
		set, err = a.compute(ctx, p, includeTaxes)
		if err != nil {
			return catalog.PriceSet{}, err
		}
		a.recorder.Recompute(telemetry.CachePrices, time.Since(started))

		bundle.Sets[fp] = set
		if writable {
			a.saveBundle(ctx, p.ID, bundle)
		}
	}

	for _, fn := range a.bundleFilters {
		set = fn(ctx, set, p, includeTaxes)
	}

	a.mu.Lock()
	a.memo[key] = set
	a.mu.Unlock()

	p.SetVariationPrices(set, includeTaxes)
	return set, nil
}

// loadBundle reads the persisted bundle of a parent. The bundle is reset when
// missing, undecodable or tagged with another epoch. writable is false when
// the read failed, so an outage does not overwrite whatever is stored.
func (a *Aggregator) loadBundle(ctx context.Context, parentID int64, version string) (Bundle, bool) {
	key := cache.PricesKey(parentID)
	fresh := Bundle{Version: version, Sets: map[Fingerprint]catalog.PriceSet{}}

	bundle, err := cache.Get[Bundle](ctx, a.store, key)
	switch {
	case err == nil:
	case cache.IsMiss(err):
		a.recorder.Lookup(telemetry.CachePrices, telemetry.OutcomeMiss)
		return fresh, true
	case cache.IsMalformed(err):
		a.recorder.Lookup(telemetry.CachePrices, telemetry.OutcomeMalformed)
		a.logger.Warn("discarding malformed price bundle", zap.String("key", key), zap.Error(err))
		return fresh, true
	default:
		a.recorder.Lookup(telemetry.CachePrices, telemetry.OutcomeUnavailable)
		a.logger.Warn("price bundle read failed", zap.String("key", key), zap.Error(err))
		return fresh, false
	}

	if bundle.Version != version || bundle.Sets == nil {
		a.recorder.Lookup(telemetry.CachePrices, telemetry.OutcomeStale)
		return fresh, true
	}
	a.recorder.Lookup(telemetry.CachePrices, telemetry.OutcomeHit)
	return bundle, true
}

func (a *Aggregator) saveBundle(ctx context.Context, parentID int64, bundle Bundle) {
	key := cache.PricesKey(parentID)
	if err := cache.Set(ctx, a.store, key, bundle, a.ttl); err != nil {
		a.recorder.WriteError(telemetry.CachePrices)
		a.logger.Warn("price bundle write failed", zap.String("key", key), zap.Error(err))
	}
}

// compute builds the price set from the visible variations of p.
func (a *Aggregator) compute(ctx context.Context, p *catalog.Product, includeTaxes bool) (catalog.PriceSet, error) {
	set := catalog.NewPriceSet()

	children, err := a.children.Resolve(ctx, p, false)
	if err != nil {
		return catalog.PriceSet{}, err
	}

	var direction Direction = ExcludingTax
	if includeTaxes {
		mode, err := a.tax.DisplayMode(ctx)
		if err != nil {
			return catalog.PriceSet{}, fmt.Errorf("%w: tax display mode: %v", ErrInvalidFingerprintInput, err)
		}
		if mode == DisplayInclusive {
			direction = IncludingTax
		}
	}

	for _, id := range children.Visible {
		v, err := a.variations.Variation(ctx, id)
		if catalog.IsNotFound(err) {
			a.logger.Debug("skipping missing variation", zap.Int64("parent_id", p.ID), zap.Int64("variation_id", id))
			continue
		}
		if err != nil {
			return catalog.PriceSet{}, err
		}

		price := a.filters.Apply(ctx, HookPrice, v.Price, v, p)
		if !price.IsSet() {
			continue
		}
		regular := a.filters.Apply(ctx, HookRegularPrice, v.RegularPrice, v, p)
		sale := a.filters.Apply(ctx, HookSalePrice, v.SalePrice, v, p)

		if sale.Equal(regular) || !sale.Equal(price) {
			sale = regular
		}

		if includeTaxes {
			if price, regular, sale, err = a.convert(ctx, v, direction, price, regular, sale); err != nil {
				return catalog.PriceSet{}, err
			}
		}

		set.Price = append(set.Price, catalog.PriceEntry{VariationID: id, Amount: price.Format(a.decimals)})
		set.RegularPrice = append(set.RegularPrice, catalog.PriceEntry{VariationID: id, Amount: regular.Format(a.decimals)})
		set.SalePrice = append(set.SalePrice, catalog.PriceEntry{VariationID: id, Amount: sale.Format(a.decimals)})
	}

	set.Price.SortByAmount()
	set.RegularPrice.SortByAmount()
	set.SalePrice.SortByAmount()
	return set, nil
}

func (a *Aggregator) convert(ctx context.Context, v *catalog.Variation, dir Direction, amounts ...catalog.Amount) (catalog.Amount, catalog.Amount, catalog.Amount, error) {
	out := make([]catalog.Amount, len(amounts))
	for i, amount := range amounts {
		converted, err := a.tax.Convert(ctx, v, amount, 1, dir)
		if err != nil {
			return catalog.Amount{}, catalog.Amount{}, catalog.Amount{}, fmt.Errorf("convert variation %d price: %w", v.ID, err)
		}
		out[i] = converted
	}
	return out[0], out[1], out[2], nil
}
