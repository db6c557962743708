package variation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/goliatone/go-variation-cache/cache"
	"github.com/goliatone/go-variation-cache/catalog"
	"github.com/goliatone/go-variation-cache/epoch"
	"github.com/goliatone/go-variation-cache/pkg/telemetry"
	"github.com/goliatone/go-variation-cache/pricing"
)

// Dependencies are the collaborators of a DataStore.
type Dependencies struct {
	Store   catalog.Store
	Cache   cache.Store
	Epochs  epoch.Registry
	Filters *pricing.FilterRegistry
	Tax     pricing.TaxService
}

// DataStore reads variable products together with their aggregated
// variation data and keeps parent state in sync on save.
type DataStore struct {
	store        catalog.Store
	cache        cache.Store
	epochs       epoch.Registry
	filters      *pricing.FilterRegistry
	tax          pricing.TaxService
	children     *ChildResolver
	attributes   *AttributeAggregator
	syncer       *Syncer
	fingerprints *pricing.FingerprintBuilder

	resolverOpts    []ChildResolverOption
	aggregatorOpts  []pricing.AggregatorOption
	fingerprintOpts []pricing.FingerprintOption
	domain          OptionDomain
	policy          CompatibilityPolicy
	logger          *zap.Logger
	recorder        telemetry.Recorder
	tracer          trace.Tracer
}

// Option configures a DataStore.
type Option func(*DataStore)

// WithResolverOptions passes options to the child resolver.
func WithResolverOptions(opts ...ChildResolverOption) Option {
	return func(d *DataStore) {
		d.resolverOpts = append(d.resolverOpts, opts...)
	}
}

// WithAggregatorOptions passes options to every price aggregator.
func WithAggregatorOptions(opts ...pricing.AggregatorOption) Option {
	return func(d *DataStore) {
		d.aggregatorOpts = append(d.aggregatorOpts, opts...)
	}
}

// WithFingerprintOptions passes options to the fingerprint builder.
func WithFingerprintOptions(opts ...pricing.FingerprintOption) Option {
	return func(d *DataStore) {
		d.fingerprintOpts = append(d.fingerprintOpts, opts...)
	}
}

// WithOptionDomain replaces the source of full attribute domains.
func WithOptionDomain(domain OptionDomain) Option {
	return func(d *DataStore) {
		d.domain = domain
	}
}

// WithCompatibility replaces the selection matching policy.
func WithCompatibility(policy CompatibilityPolicy) Option {
	return func(d *DataStore) {
		d.policy = policy
	}
}

// WithDataStoreLogger sets the logger shared by every component.
func WithDataStoreLogger(logger *zap.Logger) Option {
	return func(d *DataStore) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDataStoreRecorder sets the metrics recorder shared by every component.
func WithDataStoreRecorder(rec telemetry.Recorder) Option {
	return func(d *DataStore) {
		if rec != nil {
			d.recorder = rec
		}
	}
}

// WithTracerProvider sets the tracer provider. The global provider is used
// otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *DataStore) {
		d.tracer = telemetry.Tracer(tp)
	}
}

// NewDataStore wires a DataStore from its dependencies.
func NewDataStore(deps Dependencies, opts ...Option) *DataStore {
	d := &DataStore{
		store:    deps.Store,
		cache:    deps.Cache,
		epochs:   deps.Epochs,
		filters:  deps.Filters,
		tax:      deps.Tax,
		logger:   zap.NewNop(),
		recorder: telemetry.Nop{},
		tracer:   telemetry.Tracer(nil),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.filters == nil {
		d.filters = pricing.NewFilterRegistry()
	}

	resolverOpts := append([]ChildResolverOption{
		WithResolverLogger(d.logger),
		WithResolverRecorder(d.recorder),
	}, d.resolverOpts...)
	d.children = NewChildResolver(d.store, d.cache, resolverOpts...)
	d.attributes = NewAttributeAggregator(d.store, d.domain, d.policy)
	d.syncer = NewSyncer(d.store, d.children, d.logger)
	d.fingerprints = pricing.NewFingerprintBuilder(d.tax, d.filters, d.epochs, d.fingerprintOpts...)
	return d
}

// Filters returns the price filter registry.
func (d *DataStore) Filters() *pricing.FilterRegistry {
	return d.filters
}

// Children returns the child resolver.
func (d *DataStore) Children() *ChildResolver {
	return d.children
}

// Read loads a parent product with its child sets, both price sets and its
// variation attribute options.
func (d *DataStore) Read(ctx context.Context, id int64) (p *catalog.Product, err error) {
	ctx, span := telemetry.StartProductSpan(ctx, d.tracer, "variation.Read", id)
	defer func() { telemetry.EndSpan(span, err) }()

	p, err = d.store.Product(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err = d.children.Resolve(ctx, p, false); err != nil {
		return nil, fmt.Errorf("children of %d: %w", id, err)
	}

	prices := d.newAggregator()
	if _, err = prices.Prices(ctx, p, false); err != nil {
		return nil, fmt.Errorf("prices of %d: %w", id, err)
	}
	if _, err = prices.Prices(ctx, p, true); err != nil {
		return nil, fmt.Errorf("prices incl. tax of %d: %w", id, err)
	}

	if _, err = d.attributes.Aggregate(ctx, p); err != nil {
		return nil, fmt.Errorf("variation attributes of %d: %w", id, err)
	}
	return p, nil
}

func (d *DataStore) newAggregator() *pricing.Aggregator {
	opts := append([]pricing.AggregatorOption{
		pricing.WithLogger(d.logger),
		pricing.WithRecorder(d.recorder),
	}, d.aggregatorOpts...)

	return pricing.NewAggregator(pricing.Dependencies{
		Fingerprints: d.fingerprints,
		Children:     d.children,
		Variations:   d.store,
		Filters:      d.filters,
		Tax:          d.tax,
		Store:        d.cache,
	}, opts...)
}

// ChildHasWeight reports whether a visible variation has a positive weight.
func (d *DataStore) ChildHasWeight(ctx context.Context, p *catalog.Product) (bool, error) {
	if len(p.VisibleChildren) == 0 {
		return false, nil
	}
	return d.store.ChildHasWeight(ctx, p.VisibleChildren)
}

// ChildHasDimensions reports whether a visible variation has any dimension set.
func (d *DataStore) ChildHasDimensions(ctx context.Context, p *catalog.Product) (bool, error) {
	if len(p.VisibleChildren) == 0 {
		return false, nil
	}
	return d.store.ChildHasDimensions(ctx, p.VisibleChildren)
}

// ChildIsInStock reports whether a visible variation is in stock.
func (d *DataStore) ChildIsInStock(ctx context.Context, p *catalog.Product) (bool, error) {
	if len(p.VisibleChildren) == 0 {
		return false, nil
	}
	return d.store.ChildIsInStock(ctx, p.VisibleChildren)
}

// SyncManagedVariationStockStatus pushes a stock managing parent's status
// down to its unmanaged variations. When a variation changed, the persisted
// price bundle is dropped with the stale child set.
func (d *DataStore) SyncManagedVariationStockStatus(ctx context.Context, p *catalog.Product) error {
	changed, err := d.syncer.syncManagedStock(ctx, p)
	if changed {
		d.dropPrices(ctx, p.ID)
	}
	return err
}

func (d *DataStore) dropPrices(ctx context.Context, id int64) {
	key := cache.PricesKey(id)
	if err := d.cache.Delete(ctx, key); err != nil && !cache.IsMiss(err) {
		d.logger.Warn("price bundle delete failed", zap.String("key", key), zap.Error(err))
	}
}

// SyncPrice rebuilds the parent's price index.
func (d *DataStore) SyncPrice(ctx context.Context, p *catalog.Product) error {
	return d.syncer.SyncPrice(ctx, p)
}

// SyncStockStatus derives the parent's stock status from its variations.
func (d *DataStore) SyncStockStatus(ctx context.Context, p *catalog.Product) error {
	return d.syncer.SyncStockStatus(ctx, p)
}

// Sync runs the save path: variation stock first, then the parent's stock
// status and price index, then persists p.
func (d *DataStore) Sync(ctx context.Context, p *catalog.Product) (err error) {
	ctx, span := telemetry.StartProductSpan(ctx, d.tracer, "variation.Sync", p.ID)
	defer func() { telemetry.EndSpan(span, err) }()

	if _, err = d.children.Resolve(ctx, p, false); err != nil {
		return fmt.Errorf("children of %d: %w", p.ID, err)
	}
	if err = d.SyncManagedVariationStockStatus(ctx, p); err != nil {
		return err
	}
	if err = d.syncer.SyncStockStatus(ctx, p); err != nil {
		return err
	}
	if err = d.syncer.SyncPrice(ctx, p); err != nil {
		return err
	}
	if err = d.store.SaveProduct(ctx, p); err != nil {
		return fmt.Errorf("save product %d: %w", p.ID, err)
	}
	return nil
}

// Invalidate drops the persisted child set of a parent and bumps the product
// epoch so every persisted price bundle is recomputed on its next read.
func (d *DataStore) Invalidate(ctx context.Context, id int64) (string, error) {
	key := cache.ChildrenKey(id)
	if err := d.cache.Delete(ctx, key); err != nil && !cache.IsMiss(err) {
		d.logger.Warn("child set delete failed", zap.String("key", key), zap.Error(err))
	}
	return d.epochs.Bump(ctx, epoch.DomainProduct)
}
