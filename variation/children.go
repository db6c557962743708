package variation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-variation-cache/cache"
	"github.com/goliatone/go-variation-cache/catalog"
	"github.com/goliatone/go-variation-cache/pkg/telemetry"
)

// ChildQueryFilter may rewrite a child query before it runs. visibleOnly is
// true for the visible pass.
type ChildQueryFilter func(q catalog.ChildQuery, p *catalog.Product, visibleOnly bool) catalog.ChildQuery

// VisibilityPolicy decides whether out of stock variations are hidden.
type VisibilityPolicy interface {
	HideOutOfStock() bool
}

// StaticVisibility is a fixed VisibilityPolicy.
type StaticVisibility bool

// HideOutOfStock implements VisibilityPolicy.
func (s StaticVisibility) HideOutOfStock() bool { return bool(s) }

// childSetEntry is the persisted child set. Missing lists decode as nil
// pointers so an incomplete entry is told apart from an empty one.
type childSetEntry struct {
	All     *[]int64 `msgpack:"all"`
	Visible *[]int64 `msgpack:"visible"`
}

// ChildResolver resolves the child id lists of parent products.
type ChildResolver struct {
	finder     catalog.ChildFinder
	store      cache.Store
	visibility VisibilityPolicy
	filters    []ChildQueryFilter
	ttl        time.Duration
	logger     *zap.Logger
	recorder   telemetry.Recorder
}

// ChildResolverOption configures a ChildResolver.
type ChildResolverOption func(*ChildResolver)

// WithQueryFilter appends a query filter. Filters run in the order added.
func WithQueryFilter(fn ChildQueryFilter) ChildResolverOption {
	return func(r *ChildResolver) {
		if fn != nil {
			r.filters = append(r.filters, fn)
		}
	}
}

// WithVisibility sets the visibility policy.
func WithVisibility(policy VisibilityPolicy) ChildResolverOption {
	return func(r *ChildResolver) {
		if policy != nil {
			r.visibility = policy
		}
	}
}

// WithChildTTL sets the lifetime of persisted child sets.
func WithChildTTL(ttl time.Duration) ChildResolverOption {
	return func(r *ChildResolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(logger *zap.Logger) ChildResolverOption {
	return func(r *ChildResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithResolverRecorder sets the metrics recorder.
func WithResolverRecorder(rec telemetry.Recorder) ChildResolverOption {
	return func(r *ChildResolver) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// NewChildResolver creates a resolver. Out of stock variations stay visible
// unless a policy says otherwise.
func NewChildResolver(finder catalog.ChildFinder, store cache.Store, opts ...ChildResolverOption) *ChildResolver {
	r := &ChildResolver{
		finder:     finder,
		store:      store,
		visibility: StaticVisibility(false),
		ttl:        cache.DefaultTTL,
		logger:     zap.NewNop(),
		recorder:   telemetry.Nop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the child set of p and assigns it to p.Children and
// p.VisibleChildren. The persisted entry is used unless it is missing,
// incomplete or force is set.
func (r *ChildResolver) Resolve(ctx context.Context, p *catalog.Product, force bool) (catalog.ChildSet, error) {
	key := cache.ChildrenKey(p.ID)

	writable := true
	if !force {
		set, ok, readable := r.load(ctx, key)
		if ok {
			assign(p, set)
			return set, nil
		}
		writable = readable
	} else {
		r.recorder.Lookup(telemetry.CacheChildren, telemetry.OutcomeForced)
	}

	started := time.Now()
	set, err := r.query(ctx, p)
	if err != nil {
		return catalog.ChildSet{}, err
	}
	r.recorder.Recompute(telemetry.CacheChildren, time.Since(started))

	if writable {
		entry := childSetEntry{All: &set.All, Visible: &set.Visible}
		if err := cache.Set(ctx, r.store, key, entry, r.ttl); err != nil {
			r.recorder.WriteError(telemetry.CacheChildren)
			r.logger.Warn("child set write failed", zap.String("key", key), zap.Error(err))
		}
	}

	assign(p, set)
	return set, nil
}

// load returns the persisted set. readable is false when the store failed.
func (r *ChildResolver) load(ctx context.Context, key string) (set catalog.ChildSet, ok bool, readable bool) {
	entry, err := cache.Get[childSetEntry](ctx, r.store, key)
	switch {
	case err == nil:
	case cache.IsMiss(err):
		r.recorder.Lookup(telemetry.CacheChildren, telemetry.OutcomeMiss)
		return catalog.ChildSet{}, false, true
	case cache.IsMalformed(err):
		r.recorder.Lookup(telemetry.CacheChildren, telemetry.OutcomeMalformed)
		r.logger.Warn("discarding malformed child set", zap.String("key", key), zap.Error(err))
		return catalog.ChildSet{}, false, true
	default:
		r.recorder.Lookup(telemetry.CacheChildren, telemetry.OutcomeUnavailable)
		r.logger.Warn("child set read failed", zap.String("key", key), zap.Error(err))
		return catalog.ChildSet{}, false, false
	}

	if entry.All == nil || entry.Visible == nil {
		r.recorder.Lookup(telemetry.CacheChildren, telemetry.OutcomeMalformed)
		return catalog.ChildSet{}, false, true
	}

	r.recorder.Lookup(telemetry.CacheChildren, telemetry.OutcomeHit)
	all := *entry.All
	return catalog.ChildSet{All: all, Visible: subset(*entry.Visible, all)}, true, true
}

func (r *ChildResolver) query(ctx context.Context, p *catalog.Product) (catalog.ChildSet, error) {
	allQuery := catalog.DefaultChildQuery(p.ID)
	for _, fn := range r.filters {
		allQuery = fn(allQuery, p, false)
	}
	all, err := r.finder.ChildIDs(ctx, allQuery)
	if err != nil {
		return catalog.ChildSet{}, err
	}

	visibleQuery := catalog.DefaultChildQuery(p.ID)
	if r.visibility.HideOutOfStock() {
		visibleQuery.ExcludeStockStatuses = []catalog.StockStatus{catalog.OutOfStock}
	}
	for _, fn := range r.filters {
		visibleQuery = fn(visibleQuery, p, true)
	}
	visible, err := r.finder.ChildIDs(ctx, visibleQuery)
	if err != nil {
		return catalog.ChildSet{}, err
	}

	if all == nil {
		all = []int64{}
	}
	return catalog.ChildSet{All: all, Visible: subset(visible, all)}, nil
}

// subset keeps the ids of visible that are present in all, in visible order.
func subset(visible, all []int64) []int64 {
	members := make(map[int64]struct{}, len(all))
	for _, id := range all {
		members[id] = struct{}{}
	}
	out := make([]int64, 0, len(visible))
	for _, id := range visible {
		if _, ok := members[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func assign(p *catalog.Product, set catalog.ChildSet) {
	p.Children = set.All
	p.VisibleChildren = set.Visible
}
