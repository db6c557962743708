package variation

import (
	"context"
	"fmt"
	"slices"

	"github.com/goliatone/go-variation-cache/catalog"
)

// OptionDomain lists every option an attribute can take.
type OptionDomain interface {
	Options(ctx context.Context, p *catalog.Product, attr catalog.Attribute) ([]string, error)
}

// CatalogOptions reads taxonomy terms from the store and parses the declared
// value of text attributes.
type CatalogOptions struct {
	Finder catalog.ChildFinder
}

// Options implements OptionDomain.
func (c CatalogOptions) Options(ctx context.Context, p *catalog.Product, attr catalog.Attribute) ([]string, error) {
	if attr.IsTaxonomy {
		return c.Finder.Terms(ctx, p.ID, attr.Name)
	}
	return catalog.ParseTextAttributes(attr.Value), nil
}

// AttributeAggregator computes the selectable options of variation attributes.
type AttributeAggregator struct {
	finder catalog.ChildFinder
	domain OptionDomain
	policy CompatibilityPolicy
}

// NewAttributeAggregator creates an aggregator. A nil domain uses
// CatalogOptions over finder and a nil policy uses DefaultCompatibility.
func NewAttributeAggregator(finder catalog.ChildFinder, domain OptionDomain, policy CompatibilityPolicy) *AttributeAggregator {
	if domain == nil {
		domain = CatalogOptions{Finder: finder}
	}
	if policy == nil {
		policy = DefaultCompatibility()
	}
	return &AttributeAggregator{finder: finder, domain: domain, policy: policy}
}

// Aggregate returns the options per variation attribute of p and replaces
// p.VariationAttributes with them.
func (a *AttributeAggregator) Aggregate(ctx context.Context, p *catalog.Product) (map[string][]string, error) {
	out := make(map[string][]string)

	if len(p.Children) == 0 || len(p.Attributes) == 0 {
		p.VariationAttributes = out
		return out, nil
	}

	matcher := a.policy.Matcher(p)

	for _, attr := range p.Attributes {
		if !attr.IsVariation {
			continue
		}

		stored, err := a.finder.AttributeValues(ctx, attr.Name, p.Children)
		if err != nil {
			return nil, fmt.Errorf("attribute %s values: %w", attr.Name, err)
		}
		values := catalog.UniqueStrings(stored)

		switch {
		case len(values) == 0 || slices.Contains(values, ""):
			values, err = a.domain.Options(ctx, p, attr)
			if err != nil {
				return nil, fmt.Errorf("attribute %s options: %w", attr.Name, err)
			}
		case !attr.IsTaxonomy:
			values = matcher.Match(catalog.ParseTextAttributes(attr.Value), values)
		}

		out[attr.Name] = catalog.UniqueStrings(values)
	}

	p.VariationAttributes = out
	return out, nil
}
