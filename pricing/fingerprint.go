package pricing

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/goliatone/go-variation-cache/cache"
	"github.com/goliatone/go-variation-cache/catalog"
	"github.com/goliatone/go-variation-cache/epoch"
)

// ErrInvalidFingerprintInput is returned when an input of the price
// fingerprint cannot be read.
var ErrInvalidFingerprintInput = errors.New("invalid fingerprint input")

// Fingerprint is the hex digest identifying one price bundle.
type Fingerprint string

// HookFilters lists the filter identities registered on a hook.
type HookFilters struct {
	Hook    Hook
	Filters []FilterIdentity
}

// Basis is every input that can change computed prices, in fold order.
type Basis struct {
	IncludeTaxes     bool
	DisplayMode      DisplayMode
	PricesIncludeTax bool
	Rates            []TaxRate
	Filters          []HookFilters
	Epoch            string
	Extra            map[string]string
}

// BasisFilter may add material to a basis before it is hashed.
type BasisFilter func(ctx context.Context, basis Basis, p *catalog.Product, includeTaxes bool) Basis

// FingerprintBuilder derives price fingerprints.
type FingerprintBuilder struct {
	tax          TaxService
	filters      FilterSource
	epochs       epoch.Source
	serializer   cache.KeySerializer
	basisFilters []BasisFilter
}

// FingerprintOption configures a FingerprintBuilder.
type FingerprintOption func(*FingerprintBuilder)

// WithBasisFilter appends a basis filter. Filters run in the order added.
func WithBasisFilter(fn BasisFilter) FingerprintOption {
	return func(b *FingerprintBuilder) {
		if fn != nil {
			b.basisFilters = append(b.basisFilters, fn)
		}
	}
}

// WithKeySerializer replaces the basis serializer.
func WithKeySerializer(s cache.KeySerializer) FingerprintOption {
	return func(b *FingerprintBuilder) {
		if s != nil {
			b.serializer = s
		}
	}
}

// NewFingerprintBuilder creates a builder over its three inputs.
func NewFingerprintBuilder(tax TaxService, filters FilterSource, epochs epoch.Source, opts ...FingerprintOption) *FingerprintBuilder {
	b := &FingerprintBuilder{
		tax:        tax,
		filters:    filters,
		epochs:     epochs,
		serializer: cache.NewDefaultKeySerializer(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Basis collects the fingerprint inputs for p.
func (b *FingerprintBuilder) Basis(ctx context.Context, p *catalog.Product, includeTaxes bool) (Basis, error) {
	basis := Basis{IncludeTaxes: includeTaxes}

	if includeTaxes {
		mode, err := b.tax.DisplayMode(ctx)
		if err != nil {
			return Basis{}, fmt.Errorf("%w: tax display mode: %v", ErrInvalidFingerprintInput, err)
		}
		rates, err := b.tax.Rates(ctx)
		if err != nil {
			return Basis{}, fmt.Errorf("%w: tax rates: %v", ErrInvalidFingerprintInput, err)
		}
		inclusive, err := b.tax.PricesIncludeTax(ctx)
		if err != nil {
			return Basis{}, fmt.Errorf("%w: tax entry mode: %v", ErrInvalidFingerprintInput, err)
		}
		basis.DisplayMode = mode
		basis.PricesIncludeTax = inclusive
		basis.Rates = rates
	}

	for _, hook := range PriceHooks {
		ids, err := b.filters.Identities(hook)
		if err != nil {
			return Basis{}, fmt.Errorf("%w: filters of %s: %v", ErrInvalidFingerprintInput, hook, err)
		}
		if len(ids) > 0 {
			basis.Filters = append(basis.Filters, HookFilters{Hook: hook, Filters: ids})
		}
	}

	token, err := b.epochs.Current(ctx, epoch.DomainProduct)
	if err != nil {
		return Basis{}, fmt.Errorf("%w: epoch: %v", ErrInvalidFingerprintInput, err)
	}
	basis.Epoch = token

	for _, fn := range b.basisFilters {
		basis = fn(ctx, basis, p, includeTaxes)
	}
	return basis, nil
}

// Build returns the fingerprint of p's price inputs.
func (b *FingerprintBuilder) Build(ctx context.Context, p *catalog.Product, includeTaxes bool) (Fingerprint, error) {
	basis, err := b.Basis(ctx, p, includeTaxes)
	if err != nil {
		return "", err
	}
	return b.Hash(basis), nil
}

// Hash digests a basis.
func (b *FingerprintBuilder) Hash(basis Basis) Fingerprint {
	sum := md5.Sum([]byte(b.serializer.SerializeKey("price_basis", basis)))
	return Fingerprint(hex.EncodeToString(sum[:]))
}
