package variation

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/goliatone/go-variation-cache/catalog"
)

// SyncStore is the part of the entity store used by the sync operations.
type SyncStore interface {
	catalog.ChildFinder
	catalog.StockWriter
	catalog.PriceIndex
}

// Syncer keeps parent level state consistent with a parent's variations.
type Syncer struct {
	store    SyncStore
	children *ChildResolver
	logger   *zap.Logger
}

// NewSyncer creates a Syncer. A nil logger is replaced with a no-op logger.
func NewSyncer(store SyncStore, children *ChildResolver, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{store: store, children: children, logger: logger}
}

// SyncManagedVariationStockStatus copies the stock status of a parent that
// manages stock onto its variations that do not. If any variation changed the
// child set is recomputed.
func (s *Syncer) SyncManagedVariationStockStatus(ctx context.Context, p *catalog.Product) error {
	_, err := s.syncManagedStock(ctx, p)
	return err
}

// syncManagedStock reports whether any variation changed, also on error.
func (s *Syncer) syncManagedStock(ctx context.Context, p *catalog.Product) (bool, error) {
	if !p.ManageStock || len(p.Children) == 0 {
		return false, nil
	}

	unmanaged, err := s.store.UnmanagedStock(ctx, p.Children)
	if err != nil {
		return false, fmt.Errorf("unmanaged variations of %d: %w", p.ID, err)
	}

	changed := false
	for _, id := range unmanaged {
		updated, err := s.store.SetStockStatus(ctx, id, p.StockStatus)
		if err != nil {
			return changed, fmt.Errorf("set stock status of %d: %w", id, err)
		}
		changed = changed || updated
	}

	if !changed {
		return false, nil
	}

	s.logger.Debug("variation stock status synced",
		zap.Int64("product_id", p.ID),
		zap.String("stock_status", string(p.StockStatus)),
	)
	if _, err := s.children.Resolve(ctx, p, true); err != nil {
		return true, err
	}
	return true, nil
}

// SyncPrice rebuilds the parent's price index from the distinct set prices
// of its visible variations, lowest first.
func (s *Syncer) SyncPrice(ctx context.Context, p *catalog.Product) error {
	prices, err := s.store.ChildPrices(ctx, p.VisibleChildren)
	if err != nil {
		return fmt.Errorf("child prices of %d: %w", p.ID, err)
	}

	distinct := distinctAmounts(prices)

	if err := s.store.ClearPriceIndex(ctx, p.ID); err != nil {
		return fmt.Errorf("clear price index of %d: %w", p.ID, err)
	}
	for _, price := range distinct {
		if err := s.store.AddPriceIndex(ctx, p.ID, price); err != nil {
			return fmt.Errorf("add price index of %d: %w", p.ID, err)
		}
	}
	return nil
}

// SyncStockStatus sets the parent in stock when any visible variation is.
// Only p is updated.
func (s *Syncer) SyncStockStatus(ctx context.Context, p *catalog.Product) error {
	inStock, err := s.store.ChildIsInStock(ctx, p.VisibleChildren)
	if err != nil {
		return fmt.Errorf("child stock of %d: %w", p.ID, err)
	}
	if inStock {
		p.StockStatus = catalog.InStock
	} else {
		p.StockStatus = catalog.OutOfStock
	}
	return nil
}

func distinctAmounts(prices []catalog.Amount) []catalog.Amount {
	out := make([]catalog.Amount, 0, len(prices))
	for _, price := range prices {
		if !price.IsSet() {
			continue
		}
		dup := false
		for _, seen := range out {
			if seen.Equal(price) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, price)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Decimal().LessThan(out[j].Decimal())
	})
	return out
}
