package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// CacheService represents a generic cache service
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}

// PageKey builds the memcache-safe key under which the fingerprint of a
// search page is kept. scope names the seen set the page was diffed against,
// so another items file or a reset one never reuses the entry.
func PageKey(site, searchURL, scope string) string {
	return "listingwatcher:page:" + site + ":" + Fingerprint([]byte(searchURL+"\n"+scope))[:16]
}

// Fingerprint returns the hex sha256 of data
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
