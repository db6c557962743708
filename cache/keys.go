package cache

import "strconv"

// Persistent tier key prefixes.
const (
	ChildrenKeyPrefix = "children_"
	PricesKeyPrefix   = "prices_"
	VersionKeyPrefix  = "transient_version_"
)

// ChildrenKey is the key of a parent's child set entry.
func ChildrenKey(parentID int64) string {
	return ChildrenKeyPrefix + strconv.FormatInt(parentID, 10)
}

// PricesKey is the key of a parent's price bundle entry.
func PricesKey(parentID int64) string {
	return PricesKeyPrefix + strconv.FormatInt(parentID, 10)
}

// VersionKey is the key holding the epoch token of a cache domain.
func VersionKey(domain string) string {
	return VersionKeyPrefix + domain
}
