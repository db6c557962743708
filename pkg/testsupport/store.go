package testsupport

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/goliatone/go-variation-cache/catalog"
)

// MemoryStore is an in-memory catalog.Store. Criteria on child queries are
// ignored.
type MemoryStore struct {
	mu         sync.RWMutex
	products   map[int64]catalog.Product
	variations map[int64]catalog.Variation
	terms      map[termKey][]string
	priceIndex map[int64][]catalog.Amount
	calls      map[string]int
	failures   map[string]error
}

type termKey struct {
	productID int64
	taxonomy  string
}

var _ catalog.Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store seeded with c.
func NewMemoryStore(c Catalog) *MemoryStore {
	s := &MemoryStore{
		products:   make(map[int64]catalog.Product),
		variations: make(map[int64]catalog.Variation),
		terms:      make(map[termKey][]string),
		priceIndex: make(map[int64][]catalog.Amount),
		calls:      make(map[string]int),
		failures:   make(map[string]error),
	}
	for _, p := range c.Products {
		s.products[p.ID] = cloneProduct(p)
	}
	for _, v := range c.Variations {
		s.variations[v.ID] = cloneVariation(v)
	}
	for _, a := range c.Terms {
		s.terms[termKey{a.ProductID, a.Taxonomy}] = slices.Clone(a.Slugs)
	}
	return s
}

// PutVariation inserts or replaces a variation.
func (s *MemoryStore) PutVariation(v catalog.Variation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variations[v.ID] = cloneVariation(v)
}

// FailWith makes every later call to method return err. A nil err clears it.
func (s *MemoryStore) FailWith(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

// Calls returns how many times method was called.
func (s *MemoryStore) Calls(method string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[method]
}

// track counts a call and returns the configured failure. Callers hold mu.
func (s *MemoryStore) track(method string) error {
	s.calls[method]++
	return s.failures[method]
}

func (s *MemoryStore) Product(_ context.Context, id int64) (*catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("Product"); err != nil {
		return nil, err
	}
	p, ok := s.products[id]
	if !ok {
		return nil, catalog.NewProductNotFound(id)
	}
	cp := cloneProduct(p)
	return &cp, nil
}

func (s *MemoryStore) Variation(_ context.Context, id int64) (*catalog.Variation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("Variation"); err != nil {
		return nil, err
	}
	v, ok := s.variations[id]
	if !ok {
		return nil, catalog.NewVariationNotFound(id)
	}
	cp := cloneVariation(v)
	return &cp, nil
}

func (s *MemoryStore) SaveProduct(_ context.Context, p *catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("SaveProduct"); err != nil {
		return err
	}
	s.products[p.ID] = cloneProduct(*p)
	return nil
}

func (s *MemoryStore) ChildIDs(_ context.Context, q catalog.ChildQuery) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("ChildIDs"); err != nil {
		return nil, err
	}

	var matched []catalog.Variation
	for _, v := range s.variations {
		if v.ParentID != q.ParentID {
			continue
		}
		if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, v.Status) {
			continue
		}
		if slices.Contains(q.ExcludeStockStatuses, v.StockStatus) || slices.Contains(q.ExcludeIDs, v.ID) {
			continue
		}
		matched = append(matched, v)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if q.Order == catalog.OrderDesc {
			a, b = b, a
		}
		if a.MenuOrder != b.MenuOrder {
			return a.MenuOrder < b.MenuOrder
		}
		return a.ID < b.ID
	})

	ids := make([]int64, len(matched))
	for i, v := range matched {
		ids[i] = v.ID
	}
	return ids, nil
}

func (s *MemoryStore) AttributeValues(_ context.Context, attribute string, ids []int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("AttributeValues"); err != nil {
		return nil, err
	}
	var out []string
	for _, id := range ids {
		v, ok := s.variations[id]
		if !ok {
			continue
		}
		if value, ok := v.Attributes[attribute]; ok {
			out = append(out, value)
		}
	}
	return out, nil
}

func (s *MemoryStore) Terms(_ context.Context, productID int64, taxonomy string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("Terms"); err != nil {
		return nil, err
	}
	return slices.Clone(s.terms[termKey{productID, taxonomy}]), nil
}

func (s *MemoryStore) ChildPrices(_ context.Context, ids []int64) ([]catalog.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("ChildPrices"); err != nil {
		return nil, err
	}
	var out []catalog.Amount
	for _, id := range ids {
		if v, ok := s.variations[id]; ok && v.Price.IsSet() {
			out = append(out, v.Price)
		}
	}
	return out, nil
}

func (s *MemoryStore) ChildHasWeight(_ context.Context, ids []int64) (bool, error) {
	return s.anyChild("ChildHasWeight", ids, func(v catalog.Variation) bool { return v.Weight.Positive() })
}

func (s *MemoryStore) ChildHasDimensions(_ context.Context, ids []int64) (bool, error) {
	return s.anyChild("ChildHasDimensions", ids, func(v catalog.Variation) bool { return v.HasDimensions() })
}

func (s *MemoryStore) ChildIsInStock(_ context.Context, ids []int64) (bool, error) {
	return s.anyChild("ChildIsInStock", ids, func(v catalog.Variation) bool { return v.StockStatus == catalog.InStock })
}

func (s *MemoryStore) anyChild(method string, ids []int64, pred func(catalog.Variation) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track(method); err != nil {
		return false, err
	}
	for _, id := range ids {
		if v, ok := s.variations[id]; ok && pred(v) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) UnmanagedStock(_ context.Context, ids []int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("UnmanagedStock"); err != nil {
		return nil, err
	}
	var out []int64
	for _, id := range ids {
		if v, ok := s.variations[id]; ok && !v.ManageStock {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *MemoryStore) SetStockStatus(_ context.Context, id int64, status catalog.StockStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("SetStockStatus"); err != nil {
		return false, err
	}
	v, ok := s.variations[id]
	if !ok {
		return false, catalog.NewVariationNotFound(id)
	}
	if v.StockStatus == status {
		return false, nil
	}
	v.StockStatus = status
	s.variations[id] = v
	return true, nil
}

func (s *MemoryStore) ClearPriceIndex(_ context.Context, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("ClearPriceIndex"); err != nil {
		return err
	}
	delete(s.priceIndex, productID)
	return nil
}

func (s *MemoryStore) AddPriceIndex(_ context.Context, productID int64, price catalog.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("AddPriceIndex"); err != nil {
		return err
	}
	s.priceIndex[productID] = append(s.priceIndex[productID], price)
	return nil
}

func (s *MemoryStore) PriceIndex(_ context.Context, productID int64) ([]catalog.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("PriceIndex"); err != nil {
		return nil, err
	}
	return slices.Clone(s.priceIndex[productID]), nil
}

func cloneProduct(p catalog.Product) catalog.Product {
	p.Attributes = slices.Clone(p.Attributes)
	p.Children = slices.Clone(p.Children)
	p.VisibleChildren = slices.Clone(p.VisibleChildren)
	p.VariationAttributes = maps.Clone(p.VariationAttributes)
	p.Prices = p.Prices.Clone()
	p.PricesIncludingTax = p.PricesIncludingTax.Clone()
	return p
}

func cloneVariation(v catalog.Variation) catalog.Variation {
	v.Attributes = maps.Clone(v.Attributes)
	return v
}
