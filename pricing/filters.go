package pricing

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-variation-cache/cache"
	"github.com/goliatone/go-variation-cache/catalog"
)

// Hook names an extension point that may rewrite a variation amount.
type Hook string

const (
	HookPrice        Hook = "variation_price"
	HookRegularPrice Hook = "variation_regular_price"
	HookSalePrice    Hook = "variation_sale_price"
)

// PriceHooks lists the hooks folded into a fingerprint, in basis order.
var PriceHooks = []Hook{HookPrice, HookRegularPrice, HookSalePrice}

// PriceFilter rewrites an amount of variation v under parent p.
type PriceFilter func(ctx context.Context, value catalog.Amount, v *catalog.Variation, p *catalog.Product) catalog.Amount

// FilterIdentity identifies a registered filter without looking at its body.
type FilterIdentity struct {
	Priority int
	Name     string
}

// FilterSource exposes the registered filter identities of a hook.
type FilterSource interface {
	Identities(hook Hook) ([]FilterIdentity, error)
}

// FilterApplier runs the filters of a hook.
type FilterApplier interface {
	Apply(ctx context.Context, hook Hook, value catalog.Amount, v *catalog.Variation, p *catalog.Product) catalog.Amount
}

type registeredFilter struct {
	FilterIdentity
	seq int64
	fn  PriceFilter
}

// FilterRegistry is an ordered registry of price filters per hook. Filters run
// by ascending priority; equal priorities run in registration order.
type FilterRegistry struct {
	chains *xsync.MapOf[Hook, []registeredFilter]
	seq    atomic.Int64
}

// NewFilterRegistry creates an empty registry.
func NewFilterRegistry() *FilterRegistry {
	return &FilterRegistry{
		chains: xsync.NewMapOf[Hook, []registeredFilter](),
	}
}

// Add registers fn on hook. An empty name is replaced by the function symbol
// name; names must be unique per hook and priority for Remove to be precise.
func (r *FilterRegistry) Add(hook Hook, name string, priority int, fn PriceFilter) {
	if fn == nil {
		return
	}
	if name == "" {
		name = cache.FuncName(fn)
	}
	entry := registeredFilter{
		FilterIdentity: FilterIdentity{Priority: priority, Name: name},
		seq:            r.seq.Add(1),
		fn:             fn,
	}

	r.chains.Compute(hook, func(old []registeredFilter, loaded bool) ([]registeredFilter, bool) {
		chain := make([]registeredFilter, 0, len(old)+1)
		chain = append(chain, old...)
		chain = append(chain, entry)
		sort.SliceStable(chain, func(i, j int) bool {
			if chain[i].Priority != chain[j].Priority {
				return chain[i].Priority < chain[j].Priority
			}
			return chain[i].seq < chain[j].seq
		})
		return chain, false
	})
}

// Remove unregisters the filter named name at priority from hook.
func (r *FilterRegistry) Remove(hook Hook, name string, priority int) bool {
	removed := false
	r.chains.Compute(hook, func(old []registeredFilter, loaded bool) ([]registeredFilter, bool) {
		chain := make([]registeredFilter, 0, len(old))
		for _, f := range old {
			if !removed && f.Name == name && f.Priority == priority {
				removed = true
				continue
			}
			chain = append(chain, f)
		}
		return chain, len(chain) == 0
	})
	return removed
}

// Has reports whether any filter is registered on hook.
func (r *FilterRegistry) Has(hook Hook) bool {
	chain, ok := r.chains.Load(hook)
	return ok && len(chain) > 0
}

// Identities returns the identities registered on hook in run order.
func (r *FilterRegistry) Identities(hook Hook) ([]FilterIdentity, error) {
	chain, _ := r.chains.Load(hook)
	if len(chain) == 0 {
		return nil, nil
	}
	out := make([]FilterIdentity, len(chain))
	for i, f := range chain {
		out[i] = f.FilterIdentity
	}
	return out, nil
}

// Apply passes value through every filter of hook.
func (r *FilterRegistry) Apply(ctx context.Context, hook Hook, value catalog.Amount, v *catalog.Variation, p *catalog.Product) catalog.Amount {
	chain, _ := r.chains.Load(hook)
	for _, f := range chain {
		value = f.fn(ctx, value, v, p)
	}
	return value
}
