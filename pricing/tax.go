package pricing

import (
	"context"
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/goliatone/go-variation-cache/catalog"
)

// DisplayMode is the tax display setting of the shop.
type DisplayMode string

const (
	DisplayInclusive DisplayMode = "incl"
	DisplayExclusive DisplayMode = "excl"
)

// Direction selects the conversion applied by TaxService.Convert.
type Direction int

const (
	// IncludingTax converts to a tax inclusive amount.
	IncludingTax Direction = iota
	// ExcludingTax converts to a tax exclusive amount.
	ExcludingTax
)

// TaxRate is a percentage rate applied to a tax class. The empty class is
// the standard rate.
type TaxRate struct {
	Class string          `json:"class" yaml:"class"`
	Rate  decimal.Decimal `json:"rate" yaml:"rate"`
}

// TaxService is the tax collaborator used by fingerprinting and aggregation.
type TaxService interface {
	DisplayMode(ctx context.Context) (DisplayMode, error)
	// Rates returns the active rate table. Its contents are compared, not interpreted.
	Rates(ctx context.Context) ([]TaxRate, error)
	// PricesIncludeTax reports whether stored prices already carry tax.
	PricesIncludeTax(ctx context.Context) (bool, error)
	Convert(ctx context.Context, v *catalog.Variation, amount catalog.Amount, qty int, dir Direction) (catalog.Amount, error)
}

// StaticTax is a TaxService over a fixed rate table.
type StaticTax struct {
	Mode             DisplayMode
	pricesIncludeTax bool
	rates            []TaxRate
	byClass          map[string]decimal.Decimal
}

// NewStaticTax builds a StaticTax. Rates are ordered by class.
func NewStaticTax(mode DisplayMode, pricesIncludeTax bool, rates []TaxRate) (*StaticTax, error) {
	if err := validation.Validate(string(mode),
		validation.Required,
		validation.In(string(DisplayInclusive), string(DisplayExclusive)),
	); err != nil {
		return nil, fmt.Errorf("tax display mode: %w", err)
	}

	sorted := append([]TaxRate(nil), rates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Class < sorted[j].Class })

	byClass := make(map[string]decimal.Decimal, len(sorted))
	for _, r := range sorted {
		if r.Rate.IsNegative() {
			return nil, fmt.Errorf("tax rate for class %q is negative", r.Class)
		}
		byClass[r.Class] = r.Rate
	}

	return &StaticTax{Mode: mode, pricesIncludeTax: pricesIncludeTax, rates: sorted, byClass: byClass}, nil
}

// DisplayMode implements TaxService.
func (t *StaticTax) DisplayMode(ctx context.Context) (DisplayMode, error) {
	return t.Mode, nil
}

// Rates implements TaxService.
func (t *StaticTax) Rates(ctx context.Context) ([]TaxRate, error) {
	return append([]TaxRate(nil), t.rates...), nil
}

// PricesIncludeTax implements TaxService.
func (t *StaticTax) PricesIncludeTax(ctx context.Context) (bool, error) {
	return t.pricesIncludeTax, nil
}

// Convert implements TaxService. Unset amounts stay unset; classes without a
// rate fall back to the standard rate.
func (t *StaticTax) Convert(ctx context.Context, v *catalog.Variation, amount catalog.Amount, qty int, dir Direction) (catalog.Amount, error) {
	if !amount.IsSet() {
		return amount, nil
	}
	if qty < 1 {
		qty = 1
	}

	line := amount.Decimal().Mul(decimal.NewFromInt(int64(qty)))
	factor := decimal.NewFromInt(1).Add(t.rate(v).Div(decimal.NewFromInt(100)))

	switch {
	case dir == IncludingTax && !t.pricesIncludeTax:
		line = line.Mul(factor)
	case dir == ExcludingTax && t.pricesIncludeTax:
		line = line.Div(factor)
	}
	return catalog.NewAmount(line), nil
}

func (t *StaticTax) rate(v *catalog.Variation) decimal.Decimal {
	if v != nil {
		if r, ok := t.byClass[v.TaxClass]; ok {
			return r
		}
	}
	return t.byClass[""]
}
