// Package cache defines the framework data-cache contracts used across the
// engagement core.
//
// # Overview
//
// Two interfaces and their defaults live here:
//
//   - CacheService: read-through cache operations, including the prefix and
//     multi-key invalidation the invalidation coordinator relies on
//   - KeySerializer: builds stable cache keys from a method name and arguments
//
// The concrete backend is the sturdyc adapter in internal/cacheinfra; this
// package only knows the contract, so repositorycache decorators and the
// coordinator stay backend-agnostic.
//
// # Usage
//
//	serializer := cache.NewDefaultKeySerializer()
//	key := serializer.SerializeKey("GetByID", "profile-123")
//
//	profile, err := cache.GetOrFetch(ctx, service, key, func(ctx context.Context) (Profile, error) {
//		return repo.GetByID(ctx, "profile-123")
//	})
//
// # Key stability
//
// Keys must be deterministic across calls within one process: the coordinator
// invalidates by prefix, so the first segment of every key is always the
// entity or method namespace. Function-valued arguments serialize by pointer
// and are stable only per process lifetime; do not rely on them across
// restarts.
package cache
