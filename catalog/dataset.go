package catalog

// TermAssignment lists the term slugs of a product for one taxonomy.
type TermAssignment struct {
	ProductID int64    `json:"product_id" yaml:"product_id"`
	Taxonomy  string   `json:"taxonomy" yaml:"taxonomy"`
	Slugs     []string `json:"slugs" yaml:"slugs"`
}

// Dataset is a portable dump of products, variations and term assignments,
// used to seed stores.
type Dataset struct {
	Products   []Product        `json:"products"`
	Variations []Variation      `json:"variations"`
	Terms      []TermAssignment `json:"terms"`
}
