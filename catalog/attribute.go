package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TextDelimiter separates options in a non-taxonomy attribute value.
const TextDelimiter = "|"

// Attribute is an attribute declared on a parent product.
type Attribute struct {
	// Name is the attribute key, e.g. "size" or "pa_color" for taxonomy attributes.
	Name string `json:"name"`
	// IsTaxonomy marks attributes whose options are taxonomy terms.
	IsTaxonomy bool `json:"is_taxonomy"`
	// IsVariation marks attributes that variations select a value for.
	IsVariation bool `json:"is_variation"`
	// Value lists the allowed options, delimited by TextDelimiter.
	// Unused for taxonomy attributes.
	Value    string `json:"value"`
	Position int    `json:"position"`
}

// ParseTextAttributes splits a delimited attribute value into its trimmed,
// non-empty options.
func ParseTextAttributes(raw string) []string {
	parts := strings.Split(raw, TextDelimiter)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify normalizes a label into a lower-cased identifier: accents are
// folded, whitespace and dashes collapse into a single '-', and any other
// punctuation is dropped. "Extra Large" becomes "extra-large".
func Slugify(s string) string {
	folded, _, err := transform.String(accentFolder, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
			dash = false
		case unicode.IsSpace(r) || r == '-':
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// UniqueStrings returns values with duplicates removed, keeping the first
// occurrence of each.
func UniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
