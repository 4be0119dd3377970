// Package cache provides a TTL cache with request coalescing, used to avoid
// duplicate supervisor-directory fetches across concurrent callers.
package cache
