package variation

import (
	"strings"

	"golang.org/x/mod/semver"

	"github.com/goliatone/go-variation-cache/catalog"
)

// SlugSchemaCutoff is the first schema version that stores full text
// selections instead of slugs.
const SlugSchemaCutoff = "2.4.0"

// SelectionMatcher picks the declared options matched by stored selections.
type SelectionMatcher interface {
	Match(options, selections []string) []string
}

// ExactMatcher keeps options present verbatim among the selections.
type ExactMatcher struct{}

// Match implements SelectionMatcher.
func (ExactMatcher) Match(options, selections []string) []string {
	return matchBy(options, selections, func(s string) string { return s })
}

// SlugMatcher compares options and selections by their slug.
type SlugMatcher struct{}

// Match implements SelectionMatcher.
func (SlugMatcher) Match(options, selections []string) []string {
	return matchBy(options, selections, catalog.Slugify)
}

func matchBy(options, selections []string, norm func(string) string) []string {
	wanted := make(map[string]struct{}, len(selections))
	for _, s := range selections {
		wanted[norm(s)] = struct{}{}
	}
	out := make([]string, 0, len(options))
	for _, o := range options {
		if _, ok := wanted[norm(o)]; ok {
			out = append(out, o)
		}
	}
	return out
}

// CompatibilityPolicy selects the matcher used for a product.
type CompatibilityPolicy interface {
	Matcher(p *catalog.Product) SelectionMatcher
}

// SchemaVersionPolicy uses SlugMatcher for products saved before Cutoff and
// ExactMatcher otherwise. Empty or unparsable versions count as legacy.
type SchemaVersionPolicy struct {
	Cutoff string
}

// DefaultCompatibility returns the policy with the SlugSchemaCutoff cutoff.
func DefaultCompatibility() SchemaVersionPolicy {
	return SchemaVersionPolicy{Cutoff: SlugSchemaCutoff}
}

// Matcher implements CompatibilityPolicy.
func (s SchemaVersionPolicy) Matcher(p *catalog.Product) SelectionMatcher {
	if IsLegacySchema(p.Version, s.Cutoff) {
		return SlugMatcher{}
	}
	return ExactMatcher{}
}

// IsLegacySchema reports whether version sorts before cutoff.
func IsLegacySchema(version, cutoff string) bool {
	v := canonical(version)
	if !semver.IsValid(v) {
		return true
	}
	return semver.Compare(v, canonical(cutoff)) < 0
}

func canonical(version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		return ""
	}
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	return version
}
