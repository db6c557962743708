package catalog

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PriceEntry is one variation's formatted amount. An empty Amount means the
// value was unset.
type PriceEntry struct {
	VariationID int64  `json:"variation_id" msgpack:"id"`
	Amount      string `json:"amount" msgpack:"amount"`
}

// PriceMap is an ordered mapping of variation id to formatted amount, sorted
// by amount ascending so the first entry is the "from" price.
type PriceMap []PriceEntry

// Get returns the amount recorded for a variation.
func (m PriceMap) Get(id int64) (string, bool) {
	for _, e := range m {
		if e.VariationID == id {
			return e.Amount, true
		}
	}
	return "", false
}

// IDs returns the variation ids in map order.
func (m PriceMap) IDs() []int64 {
	ids := make([]int64, len(m))
	for i, e := range m {
		ids[i] = e.VariationID
	}
	return ids
}

// Amounts returns the amounts in map order.
func (m PriceMap) Amounts() []string {
	out := make([]string, len(m))
	for i, e := range m {
		out[i] = e.Amount
	}
	return out
}

// Min returns the lowest amount.
func (m PriceMap) Min() (string, bool) {
	if len(m) == 0 {
		return "", false
	}
	return m[0].Amount, true
}

// Max returns the highest amount.
func (m PriceMap) Max() (string, bool) {
	if len(m) == 0 {
		return "", false
	}
	return m[len(m)-1].Amount, true
}

// SortByAmount orders entries by amount ascending. Equal amounts keep their
// relative order; unset amounts sort first.
func (m PriceMap) SortByAmount() {
	sort.SliceStable(m, func(i, j int) bool {
		return lessAmount(m[i].Amount, m[j].Amount)
	})
}

func lessAmount(a, b string) bool {
	if a == "" || b == "" {
		return a == "" && b != ""
	}
	da, errA := decimal.NewFromString(a)
	db, errB := decimal.NewFromString(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return da.LessThan(db)
}

// PriceSet holds the three aggregated price maps of a parent product.
type PriceSet struct {
	Price        PriceMap `json:"price" msgpack:"price"`
	RegularPrice PriceMap `json:"regular_price" msgpack:"regular_price"`
	SalePrice    PriceMap `json:"sale_price" msgpack:"sale_price"`
}

// NewPriceSet returns a set with three empty, non-nil maps.
func NewPriceSet() PriceSet {
	return PriceSet{Price: PriceMap{}, RegularPrice: PriceMap{}, SalePrice: PriceMap{}}
}

// IsOnSale reports whether any variation has a sale price below its regular price.
func (s PriceSet) IsOnSale() bool {
	for _, e := range s.SalePrice {
		regular, ok := s.RegularPrice.Get(e.VariationID)
		if !ok || e.Amount == "" || regular == e.Amount {
			continue
		}
		if lessAmount(e.Amount, regular) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the set.
func (s PriceSet) Clone() PriceSet {
	return PriceSet{
		Price:        append(PriceMap{}, s.Price...),
		RegularPrice: append(PriceMap{}, s.RegularPrice...),
		SalePrice:    append(PriceMap{}, s.SalePrice...),
	}
}
