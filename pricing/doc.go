// Package pricing aggregates variation prices of parent products.
//
// A FingerprintBuilder folds every input that can change computed prices
// (tax display mode, tax rates, registered price filters and the product
// epoch) into an MD5 digest. The Aggregator looks that fingerprint up in an
// in-process memo keyed by (parent id, fingerprint), then in the parent's
// persisted Bundle, and recomputes the PriceSet from visible variations when
// neither holds it.
//
// Bundles are tagged with the epoch they were computed under. Bumping the
// product epoch changes every fingerprint and resets every bundle on its next
// read.
package pricing
