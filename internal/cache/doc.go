// Package cache provides the TTL key/value store used by the cache-aside layer.
//
// Two backends satisfy Store:
//   - MemoryStore: process-local map, lost on restart, swept periodically
//   - RedisStore: shared external store, survives restarts, expiry enforced by Redis
//
// Every key is namespaced by a fixed prefix. Backend failures never propagate as
// fatal errors: reads degrade to a miss and writes report ErrUnavailable, so the
// cache can only ever be wrong in the direction of a miss.
package cache
