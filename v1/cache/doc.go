// Package cache provides a small read-through cache used to keep hot voucher
// metadata in process memory. Entries expire after their TTL; concurrent
// misses for the same key are collapsed into a single load.
package cache
