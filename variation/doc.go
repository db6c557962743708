// Package variation reads variable products and the data aggregated from
// their variations.
//
// ChildResolver resolves the published and the visible child ids of a parent
// and persists them under children_<id>. AttributeAggregator narrows each
// variation attribute to the options its variations select. Syncer pushes
// stock state down to variations and rebuilds the parent's price index.
// DataStore ties them together with the pricing package.
package variation
