// Package repositorycache decorates go-repository-bun repositories with
// read-through caching on the framework data cache.
//
// Read operations (Get, GetByID, List, Count) check the cache first and fall
// through to the base repository on a miss; write operations pass through and
// then invalidate the entity's whole key namespace by prefix, so a profile
// update drops every cached query that could render it. Transaction-scoped
// reads bypass the cache entirely to preserve isolation.
//
// Cache keys are namespaced per entity using the record type's snake_cased
// name, which is also the prefix the invalidation coordinator purges. Extra
// invalidation prefixes can ride on the context via WithCacheTags, letting a
// caller fold cross-entity reads into the entity's write invalidation.
package repositorycache
