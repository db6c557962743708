package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-variation-cache/catalog"
	"github.com/goliatone/go-variation-cache/epoch"
)

func noopFilter(ctx context.Context, value catalog.Amount, v *catalog.Variation, p *catalog.Product) catalog.Amount {
	return value
}

type brokenFilters struct{}

func (brokenFilters) Identities(hook Hook) ([]FilterIdentity, error) {
	return nil, errors.New("registry is being rebuilt")
}

type failingEpochs struct{}

func (failingEpochs) Current(ctx context.Context, domain string) (string, error) {
	return "", errors.New("no epoch")
}

func TestFingerprint_Deterministic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.filters.Add(HookPrice, "", 10, noopFilter)

	a, err := f.builder().Build(ctx, parent(), true)
	require.NoError(t, err)
	b, err := f.builder().Build(ctx, parent(), true)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, string(a), 32, "128-bit hex digest")
}

func TestFingerprint_ChangesWithEachInput(t *testing.T) {
	ctx := context.Background()

	base := func(t *testing.T) *fixture {
		f := newFixture(t)
		f.epochs = epoch.NewMemoryRegistry()
		return f
	}

	tests := []struct {
		name   string
		mutate func(t *testing.T, f *fixture)
	}{
		{
			name: "tax display mode",
			mutate: func(t *testing.T, f *fixture) {
				tax, err := NewStaticTax(DisplayExclusive, false, []TaxRate{{Class: "", Rate: mustDecimal("20")}})
				require.NoError(t, err)
				f.tax = tax
			},
		},
		{
			name: "tax rates",
			mutate: func(t *testing.T, f *fixture) {
				tax, err := NewStaticTax(DisplayInclusive, false, []TaxRate{{Class: "", Rate: mustDecimal("21")}})
				require.NoError(t, err)
				f.tax = tax
			},
		},
		{
			name: "prices entered with tax",
			mutate: func(t *testing.T, f *fixture) {
				tax, err := NewStaticTax(DisplayInclusive, true, []TaxRate{{Class: "", Rate: mustDecimal("20")}})
				require.NoError(t, err)
				f.tax = tax
			},
		},
		{
			name: "filter registered",
			mutate: func(t *testing.T, f *fixture) {
				f.filters.Add(HookSalePrice, "flash_sale", 10, noopFilter)
			},
		},
		{
			name: "filter priority",
			mutate: func(t *testing.T, f *fixture) {
				f.filters.Remove(HookPrice, "member_discount", 10)
				f.filters.Add(HookPrice, "member_discount", 20, noopFilter)
			},
		},
		{
			name: "epoch",
			mutate: func(t *testing.T, f *fixture) {
				_, err := f.epochs.Bump(context.Background(), epoch.DomainProduct)
				require.NoError(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := base(t)
			f.filters.Add(HookPrice, "member_discount", 10, noopFilter)

			before, err := f.builder().Build(ctx, parent(), true)
			require.NoError(t, err)

			tt.mutate(t, f)

			after, err := f.builder().Build(ctx, parent(), true)
			require.NoError(t, err)
			assert.NotEqual(t, before, after)
		})
	}
}

func TestFingerprint_TaxInputsIgnoredWithoutTaxes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	before, err := f.builder().Build(ctx, parent(), false)
	require.NoError(t, err)

	tax, err := NewStaticTax(DisplayExclusive, true, []TaxRate{{Class: "reduced", Rate: mustDecimal("5")}})
	require.NoError(t, err)
	f.tax = tax

	after, err := f.builder().Build(ctx, parent(), false)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	withTaxes, err := f.builder().Build(ctx, parent(), true)
	require.NoError(t, err)
	assert.NotEqual(t, before, withTaxes)
}

func TestFingerprint_Basis(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.filters.Add(HookRegularPrice, "wholesale", 5, noopFilter)

	basis, err := f.builder().Basis(ctx, parent(), true)
	require.NoError(t, err)

	token, err := f.epochs.Current(ctx, epoch.DomainProduct)
	require.NoError(t, err)

	assert.True(t, basis.IncludeTaxes)
	assert.Equal(t, DisplayInclusive, basis.DisplayMode)
	assert.False(t, basis.PricesIncludeTax)
	require.Len(t, basis.Rates, 1)
	assert.Equal(t, []HookFilters{{Hook: HookRegularPrice, Filters: []FilterIdentity{{Priority: 5, Name: "wholesale"}}}}, basis.Filters)
	assert.Equal(t, token, basis.Epoch)

	basis, err = f.builder().Basis(ctx, parent(), false)
	require.NoError(t, err)
	assert.Empty(t, basis.DisplayMode)
	assert.Nil(t, basis.Rates)
}

func TestFingerprint_BasisFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	plain, err := f.builder().Build(ctx, parent(), false)
	require.NoError(t, err)

	roleBased := WithBasisFilter(func(ctx context.Context, basis Basis, p *catalog.Product, includeTaxes bool) Basis {
		basis.Extra = map[string]string{"customer_role": "wholesale"}
		return basis
	})
	extended, err := f.builder(roleBased).Build(ctx, parent(), false)
	require.NoError(t, err)

	assert.NotEqual(t, plain, extended)
}

func TestFingerprint_InvalidInputs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name    string
		builder *FingerprintBuilder
		taxes   bool
	}{
		{name: "tax service", builder: NewFingerprintBuilder(brokenTax{}, f.filters, f.epochs), taxes: true},
		{name: "filter registry", builder: NewFingerprintBuilder(f.tax, brokenFilters{}, f.epochs)},
		{name: "epoch", builder: NewFingerprintBuilder(f.tax, f.filters, failingEpochs{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build(ctx, parent(), tt.taxes)
			assert.ErrorIs(t, err, ErrInvalidFingerprintInput)
		})
	}
}
