package catalogstore

import (
	"github.com/uptrace/bun"

	"github.com/goliatone/go-variation-cache/catalog"
)

type productRow struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID          int64  `bun:"id,pk"`
	Name        string `bun:"name,notnull"`
	Version     string `bun:"version,notnull"`
	ManageStock bool   `bun:"manage_stock,notnull"`
	StockStatus string `bun:"stock_status,notnull"`
}

type attributeRow struct {
	bun.BaseModel `bun:"table:product_attributes,alias:pa"`

	ProductID   int64  `bun:"product_id,pk"`
	Name        string `bun:"name,pk"`
	IsTaxonomy  bool   `bun:"is_taxonomy,notnull"`
	IsVariation bool   `bun:"is_variation,notnull"`
	Value       string `bun:"value,notnull"`
	Position    int    `bun:"position,notnull"`
}

type variationRow struct {
	bun.BaseModel `bun:"table:variations,alias:v"`

	ID           int64          `bun:"id,pk"`
	ParentID     int64          `bun:"parent_id,notnull"`
	MenuOrder    int            `bun:"menu_order,notnull"`
	Status       string         `bun:"status,notnull"`
	Price        catalog.Amount `bun:"price,type:varchar(64)"`
	RegularPrice catalog.Amount `bun:"regular_price,type:varchar(64)"`
	SalePrice    catalog.Amount `bun:"sale_price,type:varchar(64)"`
	TaxClass     string         `bun:"tax_class,notnull"`
	ManageStock  bool           `bun:"manage_stock,notnull"`
	StockStatus  string         `bun:"stock_status,notnull"`
	Weight       catalog.Amount `bun:"weight,type:varchar(64)"`
	Length       catalog.Amount `bun:"length,type:varchar(64)"`
	Width        catalog.Amount `bun:"width,type:varchar(64)"`
	Height       catalog.Amount `bun:"height,type:varchar(64)"`
}

// variationAttributeRow is one selection of a variation. An empty value
// selects any option.
type variationAttributeRow struct {
	bun.BaseModel `bun:"table:variation_attributes,alias:va"`

	VariationID int64  `bun:"variation_id,pk"`
	Name        string `bun:"name,pk"`
	Value       string `bun:"value,notnull"`
}

type termRow struct {
	bun.BaseModel `bun:"table:product_terms,alias:pt"`

	ProductID int64  `bun:"product_id,pk"`
	Taxonomy  string `bun:"taxonomy,pk"`
	Slug      string `bun:"slug,pk"`
	Position  int    `bun:"position,notnull"`
}

type priceIndexRow struct {
	bun.BaseModel `bun:"table:product_price_index,alias:ppi"`

	ID        int64          `bun:"id,pk,autoincrement"`
	ProductID int64          `bun:"product_id,notnull"`
	Price     catalog.Amount `bun:"price,type:varchar(64)"`
}

var models = []any{
	(*productRow)(nil),
	(*attributeRow)(nil),
	(*variationRow)(nil),
	(*variationAttributeRow)(nil),
	(*termRow)(nil),
	(*priceIndexRow)(nil),
}

func toProductRow(p *catalog.Product) productRow {
	return productRow{
		ID:          p.ID,
		Name:        p.Name,
		Version:     p.Version,
		ManageStock: p.ManageStock,
		StockStatus: string(p.StockStatus),
	}
}

func (r productRow) toProduct(attrs []attributeRow) *catalog.Product {
	p := &catalog.Product{
		ID:          r.ID,
		Name:        r.Name,
		Version:     r.Version,
		ManageStock: r.ManageStock,
		StockStatus: catalog.StockStatus(r.StockStatus),
		Attributes:  make([]catalog.Attribute, 0, len(attrs)),
	}
	for _, a := range attrs {
		p.Attributes = append(p.Attributes, catalog.Attribute{
			Name:        a.Name,
			IsTaxonomy:  a.IsTaxonomy,
			IsVariation: a.IsVariation,
			Value:       a.Value,
			Position:    a.Position,
		})
	}
	return p
}

func toAttributeRows(p *catalog.Product) []attributeRow {
	rows := make([]attributeRow, 0, len(p.Attributes))
	for _, a := range p.Attributes {
		rows = append(rows, attributeRow{
			ProductID:   p.ID,
			Name:        a.Name,
			IsTaxonomy:  a.IsTaxonomy,
			IsVariation: a.IsVariation,
			Value:       a.Value,
			Position:    a.Position,
		})
	}
	return rows
}

func toVariationRow(v *catalog.Variation) variationRow {
	return variationRow{
		ID:           v.ID,
		ParentID:     v.ParentID,
		MenuOrder:    v.MenuOrder,
		Status:       v.Status,
		Price:        v.Price,
		RegularPrice: v.RegularPrice,
		SalePrice:    v.SalePrice,
		TaxClass:     v.TaxClass,
		ManageStock:  v.ManageStock,
		StockStatus:  string(v.StockStatus),
		Weight:       v.Weight,
		Length:       v.Length,
		Width:        v.Width,
		Height:       v.Height,
	}
}

func (r variationRow) toVariation(attrs []variationAttributeRow) *catalog.Variation {
	v := &catalog.Variation{
		ID:           r.ID,
		ParentID:     r.ParentID,
		MenuOrder:    r.MenuOrder,
		Status:       r.Status,
		Price:        r.Price,
		RegularPrice: r.RegularPrice,
		SalePrice:    r.SalePrice,
		TaxClass:     r.TaxClass,
		ManageStock:  r.ManageStock,
		StockStatus:  catalog.StockStatus(r.StockStatus),
		Weight:       r.Weight,
		Length:       r.Length,
		Width:        r.Width,
		Height:       r.Height,
		Attributes:   make(map[string]string, len(attrs)),
	}
	for _, a := range attrs {
		v.Attributes[a.Name] = a.Value
	}
	return v
}
