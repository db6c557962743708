package catalog

// StockStatus is the stock state of a product or variation.
type StockStatus string

const (
	InStock    StockStatus = "instock"
	OutOfStock StockStatus = "outofstock"
)

// StatusPublish is the status of variations that are listed on the storefront.
const StatusPublish = "publish"

// Product is a parent product whose price, stock and selectable options are
// aggregated from its variations.
type Product struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Attributes []Attribute `json:"attributes"`
	// Version is the schema version the product was last saved with.
	Version     string      `json:"version"`
	ManageStock bool        `json:"manage_stock"`
	StockStatus StockStatus `json:"stock_status"`

	// Children holds every published variation id, in display order.
	Children []int64 `json:"children,omitempty"`
	// VisibleChildren is the subset of Children shown under the visibility policy.
	VisibleChildren []int64 `json:"visible_children,omitempty"`
	// VariationAttributes maps attribute names to their selectable options.
	VariationAttributes map[string][]string `json:"variation_attributes,omitempty"`
	// Prices holds aggregated variation prices without tax adjustment.
	Prices PriceSet `json:"prices"`
	// PricesIncludingTax holds aggregated variation prices for display.
	PricesIncludingTax PriceSet `json:"prices_including_tax"`
}

// Attribute returns the declared attribute with the given name.
func (p *Product) Attribute(name string) (Attribute, bool) {
	for _, a := range p.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// SetVariationPrices assigns an aggregated price set, tax adjusted or not.
func (p *Product) SetVariationPrices(set PriceSet, includeTaxes bool) {
	if includeTaxes {
		p.PricesIncludingTax = set
		return
	}
	p.Prices = set
}

// VariationPrices returns the aggregated price set, tax adjusted or not.
func (p *Product) VariationPrices(includeTaxes bool) PriceSet {
	if includeTaxes {
		return p.PricesIncludingTax
	}
	return p.Prices
}

// Variation is a purchasable child of a Product.
type Variation struct {
	ID        int64  `json:"id"`
	ParentID  int64  `json:"parent_id"`
	MenuOrder int    `json:"menu_order"`
	Status    string `json:"status"`

	Price        Amount `json:"price"`
	RegularPrice Amount `json:"regular_price"`
	SalePrice    Amount `json:"sale_price"`
	TaxClass     string `json:"tax_class"`

	// Attributes maps an attribute name to the selected option. An empty
	// value matches any option of that attribute.
	Attributes map[string]string `json:"attributes"`

	ManageStock bool        `json:"manage_stock"`
	StockStatus StockStatus `json:"stock_status"`

	Weight Amount `json:"weight"`
	Length Amount `json:"length"`
	Width  Amount `json:"width"`
	Height Amount `json:"height"`
}

// HasDimensions reports whether any dimension is set.
func (v *Variation) HasDimensions() bool {
	return v.Length.IsSet() || v.Width.IsSet() || v.Height.IsSet()
}

// ChildSet is the resolved pair of child id lists of a parent. Visible is
// always a subset of All.
type ChildSet struct {
	All     []int64
	Visible []int64
}
