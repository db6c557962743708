// Package catalogstore is a catalog.Store backed by a SQL database through bun.
package catalogstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/goliatone/go-variation-cache/catalog"
)

var _ catalog.Store = (*Store)(nil)

// orderColumns are the columns a ChildQuery may order by.
var orderColumns = map[string]struct{}{
	"menu_order": {},
	"id":         {},
}

// Store implements catalog.Store over bun.
type Store struct {
	db     bun.IDB
	logger *zap.Logger
}

// New creates a store over db. A nil logger is replaced with a no-op logger.
func New(db bun.IDB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// CreateSchema creates the tables used by the store if they do not exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}

// Product loads a parent product with its attributes in position order.
func (s *Store) Product(ctx context.Context, id int64) (*catalog.Product, error) {
	var row productRow
	err := s.db.NewSelect().Model(&row).Where("p.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.NewProductNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("select product %d: %w", id, err)
	}

	var attrs []attributeRow
	err = s.db.NewSelect().Model(&attrs).
		Where("pa.product_id = ?", id).
		Order("pa.position ASC", "pa.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select attributes of %d: %w", id, err)
	}
	return row.toProduct(attrs), nil
}

// Variation loads a variation with its attribute selections.
func (s *Store) Variation(ctx context.Context, id int64) (*catalog.Variation, error) {
	var row variationRow
	err := s.db.NewSelect().Model(&row).Where("v.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.NewVariationNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("select variation %d: %w", id, err)
	}

	var attrs []variationAttributeRow
	if err := s.db.NewSelect().Model(&attrs).Where("va.variation_id = ?", id).Scan(ctx); err != nil {
		return nil, fmt.Errorf("select selections of %d: %w", id, err)
	}
	return row.toVariation(attrs), nil
}

// SaveProduct upserts the parent row and replaces its attributes.
func (s *Store) SaveProduct(ctx context.Context, p *catalog.Product) error {
	return s.inTx(ctx, func(ctx context.Context, db bun.IDB) error {
		row := toProductRow(p)
		_, err := db.NewInsert().Model(&row).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("version = EXCLUDED.version").
			Set("manage_stock = EXCLUDED.manage_stock").
			Set("stock_status = EXCLUDED.stock_status").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert product %d: %w", p.ID, err)
		}

		if _, err := db.NewDelete().Model((*attributeRow)(nil)).Where("product_id = ?", p.ID).Exec(ctx); err != nil {
			return fmt.Errorf("clear attributes of %d: %w", p.ID, err)
		}
		if attrs := toAttributeRows(p); len(attrs) > 0 {
			if _, err := db.NewInsert().Model(&attrs).Exec(ctx); err != nil {
				return fmt.Errorf("insert attributes of %d: %w", p.ID, err)
			}
		}
		return nil
	})
}

// SaveVariation upserts a variation and replaces its selections.
func (s *Store) SaveVariation(ctx context.Context, v *catalog.Variation) error {
	return s.inTx(ctx, func(ctx context.Context, db bun.IDB) error {
		row := toVariationRow(v)
		_, err := db.NewInsert().Model(&row).
			On("CONFLICT (id) DO UPDATE").
			Set("parent_id = EXCLUDED.parent_id").
			Set("menu_order = EXCLUDED.menu_order").
			Set("status = EXCLUDED.status").
			Set("price = EXCLUDED.price").
			Set("regular_price = EXCLUDED.regular_price").
			Set("sale_price = EXCLUDED.sale_price").
			Set("tax_class = EXCLUDED.tax_class").
			Set("manage_stock = EXCLUDED.manage_stock").
			Set("stock_status = EXCLUDED.stock_status").
			Set("weight = EXCLUDED.weight").
			Set("length = EXCLUDED.length").
			Set("width = EXCLUDED.width").
			Set("height = EXCLUDED.height").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert variation %d: %w", v.ID, err)
		}

		if _, err := db.NewDelete().Model((*variationAttributeRow)(nil)).Where("variation_id = ?", v.ID).Exec(ctx); err != nil {
			return fmt.Errorf("clear selections of %d: %w", v.ID, err)
		}
		if len(v.Attributes) == 0 {
			return nil
		}
		rows := make([]variationAttributeRow, 0, len(v.Attributes))
		for name, value := range v.Attributes {
			rows = append(rows, variationAttributeRow{VariationID: v.ID, Name: name, Value: value})
		}
		if _, err := db.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert selections of %d: %w", v.ID, err)
		}
		return nil
	})
}

// SetTerms replaces the terms of a product for one taxonomy.
func (s *Store) SetTerms(ctx context.Context, productID int64, taxonomy string, slugs []string) error {
	return s.inTx(ctx, func(ctx context.Context, db bun.IDB) error {
		_, err := db.NewDelete().Model((*termRow)(nil)).
			Where("product_id = ?", productID).
			Where("taxonomy = ?", taxonomy).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("clear %s terms of %d: %w", taxonomy, productID, err)
		}
		if len(slugs) == 0 {
			return nil
		}
		rows := make([]termRow, 0, len(slugs))
		for i, slug := range catalog.UniqueStrings(slugs) {
			rows = append(rows, termRow{ProductID: productID, Taxonomy: taxonomy, Slug: slug, Position: i})
		}
		if _, err := db.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert %s terms of %d: %w", taxonomy, productID, err)
		}
		return nil
	})
}

// Import writes every record of d.
func (s *Store) Import(ctx context.Context, d catalog.Dataset) error {
	for i := range d.Products {
		if err := s.SaveProduct(ctx, &d.Products[i]); err != nil {
			return err
		}
	}
	for i := range d.Variations {
		if err := s.SaveVariation(ctx, &d.Variations[i]); err != nil {
			return err
		}
	}
	for _, t := range d.Terms {
		if err := s.SetTerms(ctx, t.ProductID, t.Taxonomy, t.Slugs); err != nil {
			return err
		}
	}
	s.logger.Info("catalog imported",
		zap.Int("products", len(d.Products)),
		zap.Int("variations", len(d.Variations)),
	)
	return nil
}

// ChildIDs returns the variation ids of q.ParentID matching q, in q order.
func (s *Store) ChildIDs(ctx context.Context, q catalog.ChildQuery) ([]int64, error) {
	sel := s.db.NewSelect().Model((*variationRow)(nil)).
		Column("v.id").
		Where("v.parent_id = ?", q.ParentID)

	if len(q.Statuses) > 0 {
		sel = sel.Where("v.status IN (?)", bun.In(q.Statuses))
	}
	if len(q.ExcludeStockStatuses) > 0 {
		sel = sel.Where("v.stock_status NOT IN (?)", bun.In(q.ExcludeStockStatuses))
	}
	if len(q.ExcludeIDs) > 0 {
		sel = sel.Where("v.id NOT IN (?)", bun.In(q.ExcludeIDs))
	}
	for _, criteria := range q.Criteria {
		sel = criteria(sel)
	}

	column := q.OrderBy
	if _, ok := orderColumns[column]; !ok {
		column = "menu_order"
	}
	direction := catalog.OrderAsc
	if q.Order == catalog.OrderDesc {
		direction = catalog.OrderDesc
	}
	sel = sel.OrderExpr("v.? "+direction+", v.id "+direction, bun.Ident(column))

	ids := []int64{}
	if err := sel.Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("select children of %d: %w", q.ParentID, err)
	}
	return ids, nil
}

// AttributeValues returns the value of attribute selected by each of ids, in
// ids order. Variations without a selection are skipped.
func (s *Store) AttributeValues(ctx context.Context, attribute string, ids []int64) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []variationAttributeRow
	err := s.db.NewSelect().Model(&rows).
		Where("va.name = ?", attribute).
		Where("va.variation_id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select %s selections: %w", attribute, err)
	}

	byID := make(map[int64]string, len(rows))
	for _, r := range rows {
		byID[r.VariationID] = r.Value
	}
	var out []string
	for _, id := range ids {
		if value, ok := byID[id]; ok {
			out = append(out, value)
		}
	}
	return out, nil
}

// Terms returns the term slugs of a product taxonomy in position order.
func (s *Store) Terms(ctx context.Context, productID int64, taxonomy string) ([]string, error) {
	slugs := []string{}
	err := s.db.NewSelect().Model((*termRow)(nil)).
		Column("pt.slug").
		Where("pt.product_id = ?", productID).
		Where("pt.taxonomy = ?", taxonomy).
		Order("pt.position ASC").
		Scan(ctx, &slugs)
	if err != nil {
		return nil, fmt.Errorf("select %s terms of %d: %w", taxonomy, productID, err)
	}
	return slugs, nil
}

// ChildPrices returns the set prices of ids.
func (s *Store) ChildPrices(ctx context.Context, ids []int64) ([]catalog.Amount, error) {
	rows, err := s.variations(ctx, ids)
	if err != nil {
		return nil, err
	}
	var out []catalog.Amount
	for _, r := range rows {
		if r.Price.IsSet() {
			out = append(out, r.Price)
		}
	}
	return out, nil
}

// ChildHasWeight reports whether any of ids has a positive weight.
func (s *Store) ChildHasWeight(ctx context.Context, ids []int64) (bool, error) {
	rows, err := s.variations(ctx, ids)
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.Weight.Positive() {
			return true, nil
		}
	}
	return false, nil
}

// ChildHasDimensions reports whether any of ids has a dimension set.
func (s *Store) ChildHasDimensions(ctx context.Context, ids []int64) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	return s.db.NewSelect().Model((*variationRow)(nil)).
		Where("v.id IN (?)", bun.In(ids)).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("v.length IS NOT NULL").
				WhereOr("v.width IS NOT NULL").
				WhereOr("v.height IS NOT NULL")
		}).
		Exists(ctx)
}

// ChildIsInStock reports whether any of ids is in stock.
func (s *Store) ChildIsInStock(ctx context.Context, ids []int64) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	return s.db.NewSelect().Model((*variationRow)(nil)).
		Where("v.id IN (?)", bun.In(ids)).
		Where("v.stock_status = ?", string(catalog.InStock)).
		Exists(ctx)
}

// UnmanagedStock returns the ids that do not manage their own stock, ascending.
func (s *Store) UnmanagedStock(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := []int64{}
	err := s.db.NewSelect().Model((*variationRow)(nil)).
		Column("v.id").
		Where("v.id IN (?)", bun.In(ids)).
		Where("v.manage_stock = ?", false).
		Order("v.id ASC").
		Scan(ctx, &out)
	if err != nil {
		return nil, fmt.Errorf("select unmanaged variations: %w", err)
	}
	return out, nil
}

// SetStockStatus updates the stock status of a variation and reports
// whether the row changed.
func (s *Store) SetStockStatus(ctx context.Context, id int64, status catalog.StockStatus) (bool, error) {
	res, err := s.db.NewUpdate().Model((*variationRow)(nil)).
		Set("stock_status = ?", string(status)).
		Where("id = ?", id).
		Where("stock_status <> ?", string(status)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("update stock status of %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	exists, err := s.db.NewSelect().Model((*variationRow)(nil)).Where("v.id = ?", id).Exists(ctx)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, catalog.NewVariationNotFound(id)
	}
	return false, nil
}

// ClearPriceIndex removes the price index rows of a product.
func (s *Store) ClearPriceIndex(ctx context.Context, productID int64) error {
	_, err := s.db.NewDelete().Model((*priceIndexRow)(nil)).Where("product_id = ?", productID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("clear price index of %d: %w", productID, err)
	}
	return nil
}

// AddPriceIndex appends price to the index of a product.
func (s *Store) AddPriceIndex(ctx context.Context, productID int64, price catalog.Amount) error {
	row := priceIndexRow{ProductID: productID, Price: price}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("add price index of %d: %w", productID, err)
	}
	return nil
}

// PriceIndex returns the indexed prices of a product in insertion order.
func (s *Store) PriceIndex(ctx context.Context, productID int64) ([]catalog.Amount, error) {
	var rows []priceIndexRow
	err := s.db.NewSelect().Model(&rows).
		Where("ppi.product_id = ?", productID).
		Order("ppi.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select price index of %d: %w", productID, err)
	}
	out := make([]catalog.Amount, len(rows))
	for i, r := range rows {
		out[i] = r.Price
	}
	return out, nil
}

// variations returns the rows of ids in the order given.
func (s *Store) variations(ctx context.Context, ids []int64) ([]variationRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []variationRow
	if err := s.db.NewSelect().Model(&rows).Where("v.id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, fmt.Errorf("select variations: %w", err)
	}
	byID := make(map[int64]variationRow, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	out := make([]variationRow, 0, len(rows))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context, db bun.IDB) error) error {
	db, ok := s.db.(*bun.DB)
	if !ok {
		return fn(ctx, s.db)
	}
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, tx)
	})
}
