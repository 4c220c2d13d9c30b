// Package cache provides the response cache used by the portal's read-only
// API endpoints. Keys are full request identities (path + query string) and
// payloads are the JSON-serialisable response bodies. The default in-process
// implementation is Memory.
package cache

// Cache defines the interface for response caching.
//
// Entries older than the cache TTL are reported as absent by Get but stay in
// storage until they are overwritten or invalidated.
type Cache interface {
	Get(key string) (any, bool)
	Put(key string, payload any)
	// InvalidateBySubstring removes every entry whose key contains fragment
	// and returns how many entries were removed.
	InvalidateBySubstring(fragment string) int
	Len() int
	Clear()
}
