// Package config loads the application configuration from a YAML file and
// VARCACHE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-variation-cache/cache"
	"github.com/goliatone/go-variation-cache/internal/catalogstore"
	"github.com/goliatone/go-variation-cache/pricing"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VARCACHE_"

// Config is the application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Cache    cache.Config   `yaml:"cache"`
	Database DatabaseConfig `yaml:"database"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DatabaseConfig selects the entity store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RateConfig is a tax rate in percent. Rates are strings so YAML never
// rounds them through a float.
type RateConfig struct {
	Class string `yaml:"class"`
	Rate  string `yaml:"rate"`
}

// PricingConfig configures price aggregation and tax display.
type PricingConfig struct {
	Decimals         int          `yaml:"decimals"`
	DisplayMode      string       `yaml:"display_mode"`
	PricesIncludeTax bool         `yaml:"prices_include_tax"`
	Rates            []RateConfig `yaml:"rates"`
}

// CatalogConfig configures child resolution and entity caching.
type CatalogConfig struct {
	HideOutOfStock bool `yaml:"hide_out_of_stock"`
	// ReadThrough caches entity lookups in process.
	ReadThrough bool `yaml:"read_through"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Log:   LogConfig{Level: "info"},
		Cache: cache.DefaultConfig(),
		Database: DatabaseConfig{
			Driver: catalogstore.DriverSQLite,
			DSN:    "file:varcache.db?cache=shared",
		},
		Pricing: PricingConfig{
			Decimals:    pricing.DefaultDecimals,
			DisplayMode: string(pricing.DisplayExclusive),
		},
		Catalog: CatalogConfig{ReadThrough: true},
		Metrics: MetricsConfig{Namespace: "varcache"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.Log),
		validation.Field(&c.Database),
		validation.Field(&c.Pricing),
	)
}

func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.By(func(v any) error {
			_, err := zapcore.ParseLevel(v.(string))
			return err
		})),
	)
}

func (d DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In(catalogstore.DriverSQLite, catalogstore.DriverPostgres)),
		validation.Field(&d.DSN, validation.Required),
	)
}

func (p PricingConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Decimals, validation.Min(0), validation.Max(8)),
		validation.Field(&p.DisplayMode, validation.Required, validation.In(string(pricing.DisplayInclusive), string(pricing.DisplayExclusive))),
		validation.Field(&p.Rates, validation.Each(validation.By(func(v any) error {
			_, err := decimal.NewFromString(v.(RateConfig).Rate)
			return err
		}))),
	)
}

// TaxRates converts the configured rates.
func (p PricingConfig) TaxRates() ([]pricing.TaxRate, error) {
	rates := make([]pricing.TaxRate, 0, len(p.Rates))
	for _, r := range p.Rates {
		d, err := decimal.NewFromString(r.Rate)
		if err != nil {
			return nil, fmt.Errorf("tax rate %q: %w", r.Class, err)
		}
		rates = append(rates, pricing.TaxRate{Class: r.Class, Rate: d})
	}
	return rates, nil
}

// TaxService builds the static tax service described by p.
func (p PricingConfig) TaxService() (*pricing.StaticTax, error) {
	rates, err := p.TaxRates()
	if err != nil {
		return nil, err
	}
	return pricing.NewStaticTax(pricing.DisplayMode(p.DisplayMode), p.PricesIncludeTax, rates)
}

// Logger builds a zap logger at the configured level.
func (l LogConfig) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// LookupFunc reads an environment variable.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg with the VARCACHE_* variables found by lookup.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("LOG_LEVEL", &cfg.Log.Level)
	e.boolean("LOG_DEVELOPMENT", &cfg.Log.Development)

	e.str("DB_DRIVER", &cfg.Database.Driver)
	e.str("DB_DSN", &cfg.Database.DSN)

	var backend string
	if e.str("CACHE_BACKEND", &backend) {
		cfg.Cache.Backend = cache.Backend(backend)
	}
	e.duration("CACHE_TTL", &cfg.Cache.TTL)
	e.integer("CACHE_CAPACITY", &cfg.Cache.Capacity)
	e.str("REDIS_ADDR", &cfg.Cache.Redis.Addr)
	e.str("REDIS_PASSWORD", &cfg.Cache.Redis.Password)
	e.integer("REDIS_DB", &cfg.Cache.Redis.DB)
	e.str("REDIS_KEY_PREFIX", &cfg.Cache.Redis.KeyPrefix)
	e.str("DYNAMO_TABLE", &cfg.Cache.Dynamo.Table)
	e.str("DYNAMO_REGION", &cfg.Cache.Dynamo.Region)
	e.str("DYNAMO_ENDPOINT", &cfg.Cache.Dynamo.Endpoint)
	e.boolean("BREAKER_ENABLED", &cfg.Cache.Breaker.Enabled)

	e.integer("PRICING_DECIMALS", &cfg.Pricing.Decimals)
	e.str("TAX_DISPLAY_MODE", &cfg.Pricing.DisplayMode)
	e.boolean("PRICES_INCLUDE_TAX", &cfg.Pricing.PricesIncludeTax)
	var standard string
	if e.str("TAX_STANDARD_RATE", &standard) {
		cfg.Pricing.Rates = setRate(cfg.Pricing.Rates, "", standard)
	}

	e.boolean("HIDE_OUT_OF_STOCK", &cfg.Catalog.HideOutOfStock)
	e.boolean("READ_THROUGH", &cfg.Catalog.ReadThrough)
	e.str("METRICS_NAMESPACE", &cfg.Metrics.Namespace)

	return e.err
}

func setRate(rates []RateConfig, class, rate string) []RateConfig {
	for i := range rates {
		if rates[i].Class == class {
			rates[i].Rate = rate
			return rates
		}
	}
	return append(rates, RateConfig{Class: class, Rate: rate})
}

// envReader collects the first parse error.
type envReader struct {
	lookup LookupFunc
	err    error
}

func (e *envReader) get(name string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := e.lookup(EnvPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) fail(name, value string, err error) {
	e.err = fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, value, err)
}

func (e *envReader) str(name string, dst *string) bool {
	v, ok := e.get(name)
	if ok {
		*dst = v
	}
	return ok
}

func (e *envReader) boolean(name string, dst *bool) {
	if v, ok := e.get(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) integer(name string, dst *int) {
	if v, ok := e.get(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if v, ok := e.get(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = d
	}
}
