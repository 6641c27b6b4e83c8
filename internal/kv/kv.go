// Package kv abstracts the external key-value collaborator used by the page
// cache and counter store. Two implementations exist: a Redis-backed store for
// hosted deployments and a mutex-guarded in-memory store for local mode and
// tests. Consumers must tolerate the store being absent or unreachable; every
// read error other than ErrMiss should be treated as a cache miss by callers
// that have a durable source to fall back on.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when a key does not exist or has expired.
var ErrMiss = errors.New("kv: key not found")

// ErrUnavailable wraps transport-level failures talking to the store.
var ErrUnavailable = errors.New("kv: store unavailable")

// Store is the narrow contract the cache layers need from the external
// key-value collaborator.
type Store interface {
	// Get returns the value stored at key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key with the given TTL. A zero TTL stores the
	// value without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes the given keys. Deleting absent keys is a no-op.
	Del(ctx context.Context, keys ...string) error

	// SAdd adds members to the set at key and refreshes the set's TTL.
	// The TTL refresh bounds the growth of secondary indexes whose owner
	// never purges them.
	SAdd(ctx context.Context, key string, members []string, ttl time.Duration) error

	// SMembers returns the members of the set at key. An absent set yields
	// an empty slice, not an error.
	SMembers(ctx context.Context, key string) ([]string, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
