package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/goliatone/go-variation-cache/cache"
	"github.com/goliatone/go-variation-cache/catalog"
	"github.com/goliatone/go-variation-cache/config"
	"github.com/goliatone/go-variation-cache/epoch"
	"github.com/goliatone/go-variation-cache/internal/catalogstore"
	"github.com/goliatone/go-variation-cache/pkg/telemetry"
	"github.com/goliatone/go-variation-cache/pricing"
	"github.com/goliatone/go-variation-cache/storecache"
	"github.com/goliatone/go-variation-cache/variation"
)

// Container provides dependency injection for the variation data store.
// It owns the database handle, the persistent cache tier, the epoch
// registry and the metrics collector, and builds a single DataStore from
// them.
type Container struct {
	config config.Config
	logger *zap.Logger

	db       *bun.DB
	ownsDB   bool
	entities *catalogstore.Store
	store    catalog.Store

	keySerializer cache.KeySerializer
	cacheService  cache.CacheService
	tier          *cache.ClosableStore

	epochs    epoch.Registry
	filters   *pricing.FilterRegistry
	tax       pricing.TaxService
	metrics   *telemetry.Collector
	gatherer  prometheus.Gatherer
	dataStore *variation.DataStore
}

// Option customizes NewContainer.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	db         *bun.DB
	redis      cache.RedisClient
	dynamo     cache.DynamoAPI
	registerer prometheus.Registerer
	tracer     trace.TracerProvider
	dataOpts   []variation.Option
}

// WithLogger sets the logger instead of building one from the log config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDB uses db instead of opening the configured database. The caller
// keeps ownership and Close leaves it open.
func WithDB(db *bun.DB) Option {
	return func(o *options) { o.db = db }
}

// WithRedisClient sets the client used by the redis cache backend.
func WithRedisClient(client cache.RedisClient) Option {
	return func(o *options) { o.redis = client }
}

// WithDynamoClient sets the client used by the dynamodb cache backend. The
// default AWS config chain is used otherwise.
func WithDynamoClient(client cache.DynamoAPI) Option {
	return func(o *options) { o.dynamo = client }
}

// WithRegisterer registers the collector with reg. A private registry is
// used otherwise.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithTracerProvider sets the tracer provider used by the data store.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// WithDataStoreOptions appends options passed to variation.NewDataStore.
func WithDataStoreOptions(opts ...variation.Option) Option {
	return func(o *options) { o.dataOpts = append(o.dataOpts, opts...) }
}

// NewContainer validates cfg and wires every component. Resources opened
// before a failure are released.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (c *Container, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	c = &Container{
		config:        cfg,
		logger:        o.logger,
		keySerializer: cache.NewDefaultKeySerializer(),
	}
	defer func() {
		if err != nil {
			c.Close()
			c = nil
		}
	}()

	if c.logger == nil {
		if c.logger, err = cfg.Log.Logger(); err != nil {
			return c, fmt.Errorf("logger: %w", err)
		}
	}

	c.db = o.db
	if c.db == nil {
		if c.db, err = catalogstore.Open(cfg.Database.Driver, cfg.Database.DSN); err != nil {
			return c, err
		}
		c.ownsDB = true
	}
	c.entities = catalogstore.New(c.db, c.logger.Named("catalogstore"))
	c.store = c.entities

	storeOpts := []cache.StoreOption{cache.WithStoreLogger(c.logger.Named("cache"))}
	if o.redis != nil {
		storeOpts = append(storeOpts, cache.WithRedisClient(o.redis))
	}
	if cfg.Cache.Backend == cache.BackendDynamo {
		client := o.dynamo
		if client == nil {
			if client, err = dynamoClient(ctx, cfg.Cache.Dynamo); err != nil {
				return c, err
			}
		}
		storeOpts = append(storeOpts, cache.WithDynamoClient(client))
	}
	if c.tier, err = cache.NewStore(cfg.Cache, storeOpts...); err != nil {
		return c, fmt.Errorf("cache store: %w", err)
	}

	c.epochs = epoch.NewStoreRegistry(c.tier, epoch.WithLogger(c.logger.Named("epoch")))

	if cfg.Catalog.ReadThrough {
		if c.cacheService, err = cache.NewCacheService(cfg.Cache); err != nil {
			return c, fmt.Errorf("cache service: %w", err)
		}
		c.store = storecache.New(c.entities, c.cacheService, c.keySerializer, c.logger.Named("storecache"),
			storecache.WithEpochs(c.epochs))
	}

	c.filters = pricing.NewFilterRegistry()
	if c.tax, err = cfg.Pricing.TaxService(); err != nil {
		return c, fmt.Errorf("tax: %w", err)
	}

	reg := o.registerer
	if reg == nil {
		private := prometheus.NewRegistry()
		reg, c.gatherer = private, private
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	}
	if c.metrics, err = telemetry.NewCollector(cfg.Metrics.Namespace, reg); err != nil {
		return c, fmt.Errorf("metrics: %w", err)
	}

	dataOpts := []variation.Option{
		variation.WithDataStoreLogger(c.logger.Named("variation")),
		variation.WithDataStoreRecorder(c.metrics),
		variation.WithResolverOptions(variation.WithVisibility(variation.StaticVisibility(cfg.Catalog.HideOutOfStock))),
		variation.WithAggregatorOptions(pricing.WithDecimals(cfg.Pricing.Decimals), pricing.WithTTL(cfg.Cache.TTL)),
	}
	if o.tracer != nil {
		dataOpts = append(dataOpts, variation.WithTracerProvider(o.tracer))
	}
	dataOpts = append(dataOpts, o.dataOpts...)

	c.dataStore = variation.NewDataStore(variation.Dependencies{
		Store:   c.store,
		Cache:   c.tier,
		Epochs:  c.epochs,
		Filters: c.filters,
		Tax:     c.tax,
	}, dataOpts...)

	c.logger.Debug("container ready",
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("cache_backend", string(cfg.Cache.Backend)),
		zap.Bool("read_through", cfg.Catalog.ReadThrough),
	)
	return c, nil
}

func dynamoClient(ctx context.Context, cfg cache.DynamoConfig) (*dynamodb.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// Config returns the configuration the container was built from.
func (c *Container) Config() config.Config {
	return c.config
}

// Logger returns the root logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// DB returns the database handle.
func (c *Container) DB() *bun.DB {
	return c.db
}

// Entities returns the SQL entity store without the read-through layer.
// Writes made through it bypass the entity cache.
func (c *Container) Entities() *catalogstore.Store {
	return c.entities
}

// Store returns the entity store used by the data store.
func (c *Container) Store() catalog.Store {
	return c.store
}

// CacheService returns the in-process entity cache, or nil when read
// through caching is disabled.
func (c *Container) CacheService() cache.CacheService {
	return c.cacheService
}

// KeySerializer returns the key serializer shared by the cache layers.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// CacheStore returns the persistent cache tier.
func (c *Container) CacheStore() cache.Store {
	return c.tier
}

// Epochs returns the epoch registry.
func (c *Container) Epochs() epoch.Registry {
	return c.epochs
}

// Filters returns the price filter registry.
func (c *Container) Filters() *pricing.FilterRegistry {
	return c.filters
}

// Gatherer returns the registry holding the collector, if it can be
// gathered.
func (c *Container) Gatherer() prometheus.Gatherer {
	return c.gatherer
}

// DataStore returns the variation data store.
func (c *Container) DataStore() *variation.DataStore {
	return c.dataStore
}

// Invalidate drops every cached view of product id: the read-through
// entries of the product and its variations, the persisted child set and
// the product epoch. It returns the new epoch token.
func (c *Container) Invalidate(ctx context.Context, id int64) (string, error) {
	if cached, ok := c.store.(*storecache.CachedStore); ok {
		cached.InvalidateProduct(ctx, id)
		q := catalog.DefaultChildQuery(id)
		q.Statuses = nil
		ids, err := c.entities.ChildIDs(ctx, q)
		if err != nil {
			return "", fmt.Errorf("variations of %d: %w", id, err)
		}
		for _, vid := range ids {
			cached.InvalidateVariation(ctx, vid)
		}
	}
	return c.dataStore.Invalidate(ctx, id)
}

// Close releases the cache tier and the database handle opened by the
// container.
func (c *Container) Close() error {
	var errs []error
	if c.tier != nil {
		if err := c.tier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache store: %w", err))
		}
	}
	if c.ownsDB && c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	return errors.Join(errs...)
}
