package repositorycache

import (
	"context"
	"log/slog"
	"reflect"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/suplatzigram/go-engagement-cache/cache"
)

// Repository is the subset of go-repository-bun's repository surface the
// engagement core reads and writes through. Accepting the narrowed interface
// keeps any full repository.Repository[T] implementation usable as a base.
type Repository[T any] interface {
	Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error)
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error)
	List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error)
	Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error)

	Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error)
	Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error)
	Delete(ctx context.Context, record T) error
	DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error

	GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error)
	ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error)
}

// listResult wraps the tuple result from List operations for caching.
type listResult[T any] struct {
	Records []T `json:"records"`
	Total   int `json:"total"`
}

// CachedRepository decorates a base repository with read-through caching and
// prefix invalidation.
type CachedRepository[T any] struct {
	base       Repository[T]
	cache      cache.CacheService
	keys       cache.KeySerializer
	entity     string
	afterWrite func(ctx context.Context)
	log        *slog.Logger
}

// Option configures a CachedRepository.
type Option[T any] func(*CachedRepository[T])

// WithAfterWrite registers a hook run after every successful write, once the
// entity namespace is purged. The invalidation coordinator hangs off this to
// fan the change out to the page and route caches.
func WithAfterWrite[T any](hook func(ctx context.Context)) Option[T] {
	return func(c *CachedRepository[T]) { c.afterWrite = hook }
}

// WithLogger sets the logger for invalidation failures.
func WithLogger[T any](log *slog.Logger) Option[T] {
	return func(c *CachedRepository[T]) { c.log = log }
}

// New wraps base with caching. The entity namespace is derived from T's type
// name.
func New[T any](base Repository[T], cacheService cache.CacheService, keys cache.KeySerializer, opts ...Option[T]) *CachedRepository[T] {
	c := &CachedRepository[T]{
		base:   base,
		cache:  cacheService,
		keys:   keys,
		entity: entityName[T](),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func entityName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	return toSnake(name)
}

// Entity returns the snake_cased namespace this decorator caches under. The
// invalidation coordinator purges `Entity() + cache.KeySeparator` to drop
// every cached query for the entity.
func (c *CachedRepository[T]) Entity() string {
	return c.entity
}

func (c *CachedRepository[T]) key(method string, args ...any) string {
	return c.entity + cache.KeySeparator + c.keys.SerializeKey(method, args...)
}

// Get retrieves a single record by criteria, read-through.
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	return cache.GetOrFetch(ctx, c.cache, c.key("Get", criteria), func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	})
}

// GetByID retrieves a record by ID, read-through.
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	return cache.GetOrFetch(ctx, c.cache, c.key("GetByID", id, criteria), func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id, criteria...)
	})
}

// List retrieves records and the total count as one cached unit.
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	res, err := cache.GetOrFetch(ctx, c.cache, c.key("List", criteria), func(ctx context.Context) (listResult[T], error) {
		records, total, err := c.base.List(ctx, criteria...)
		return listResult[T]{Records: records, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

// Count returns the number of matching records, read-through.
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return cache.GetOrFetch(ctx, c.cache, c.key("Count", criteria), func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, criteria...)
	})
}

// Create passes through to the base repository and invalidates the entity
// namespace on success.
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err == nil {
		c.invalidate(ctx)
	}
	return result, err
}

// Update passes through and invalidates on success.
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.invalidate(ctx)
	}
	return result, err
}

// Delete passes through and invalidates on success.
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.invalidate(ctx)
	}
	return err
}

// DeleteWhere passes through and invalidates on success. Without the deleted
// records in hand the whole namespace goes.
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.invalidate(ctx)
	}
	return err
}

// GetTx bypasses the cache: reads inside a transaction must see the
// transaction's own writes, not a snapshot cached before it began.
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// ListTx bypasses the cache.
func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// invalidate purges the entity namespace, any context-attached prefixes, and
// runs the after-write hook. Purge failures are logged, not returned: the
// write itself succeeded, and TTL expiry bounds the staleness window.
func (c *CachedRepository[T]) invalidate(ctx context.Context) {
	prefixes := append([]string{c.entity}, cacheTagsFromContext(ctx)...)
	for _, prefix := range prefixes {
		if err := c.cache.DeleteByPrefix(ctx, prefix+cache.KeySeparator); err != nil {
			c.log.Warn("repository cache purge failed", "prefix", prefix, "error", err)
		}
	}
	if c.afterWrite != nil {
		c.afterWrite(ctx)
	}
}
