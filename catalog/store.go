package catalog

import (
	"context"

	repository "github.com/goliatone/go-repository-bun"
)

// Sort directions for ChildQuery.Order.
const (
	OrderAsc  = "ASC"
	OrderDesc = "DESC"
)

// ChildQuery describes a lookup of variation ids under a parent.
type ChildQuery struct {
	ParentID int64
	Statuses []string
	OrderBy  string
	Order    string
	// ExcludeStockStatuses drops variations in any of the listed states.
	ExcludeStockStatuses []StockStatus
	// ExcludeIDs drops specific variations.
	ExcludeIDs []int64
	// Criteria are applied verbatim by SQL backed stores.
	Criteria []repository.SelectCriteria
}

// DefaultChildQuery returns the query for every published variation of a
// parent, ordered by menu order.
func DefaultChildQuery(parentID int64) ChildQuery {
	return ChildQuery{
		ParentID: parentID,
		Statuses: []string{StatusPublish},
		OrderBy:  "menu_order",
		Order:    OrderAsc,
	}
}

// ProductReader loads entities by id. Missing records return a NotFoundError.
type ProductReader interface {
	Product(ctx context.Context, id int64) (*Product, error)
	Variation(ctx context.Context, id int64) (*Variation, error)
}

// ProductWriter persists a parent product.
type ProductWriter interface {
	SaveProduct(ctx context.Context, p *Product) error
}

// ChildFinder answers set queries over a parent's variations.
type ChildFinder interface {
	ChildIDs(ctx context.Context, q ChildQuery) ([]int64, error)
	// AttributeValues returns the stored selection of attribute for each of
	// the given variations that has one, duplicates included.
	AttributeValues(ctx context.Context, attribute string, ids []int64) ([]string, error)
	// Terms returns the term slugs assigned to a product for a taxonomy.
	Terms(ctx context.Context, productID int64, taxonomy string) ([]string, error)
	// ChildPrices returns the set prices of the given variations, duplicates included.
	ChildPrices(ctx context.Context, ids []int64) ([]Amount, error)
	ChildHasWeight(ctx context.Context, ids []int64) (bool, error)
	ChildHasDimensions(ctx context.Context, ids []int64) (bool, error)
	ChildIsInStock(ctx context.Context, ids []int64) (bool, error)
}

// StockWriter updates variation stock state.
type StockWriter interface {
	// UnmanagedStock returns the variations among ids that do not manage their own stock.
	UnmanagedStock(ctx context.Context, ids []int64) ([]int64, error)
	// SetStockStatus updates a variation and reports whether the value changed.
	SetStockStatus(ctx context.Context, id int64, status StockStatus) (bool, error)
}

// PriceIndex is the parent's multi-valued price record used for range and sort queries.
type PriceIndex interface {
	ClearPriceIndex(ctx context.Context, productID int64) error
	AddPriceIndex(ctx context.Context, productID int64, price Amount) error
	PriceIndex(ctx context.Context, productID int64) ([]Amount, error)
}

// Store is the full entity store consumed by the variation data store.
type Store interface {
	ProductReader
	ProductWriter
	ChildFinder
	StockWriter
	PriceIndex
}
