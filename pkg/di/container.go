// Package di wires the engagement stack together from configuration. The
// container owns singleton instances of the cache layers, the counter store,
// the invalidation coordinator, and the synchronization bridge, and provides
// factories for per-session reconcilers and cached repositories.
package di

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/suplatzigram/go-engagement-cache/cache"
	"github.com/suplatzigram/go-engagement-cache/counter"
	"github.com/suplatzigram/go-engagement-cache/feed"
	"github.com/suplatzigram/go-engagement-cache/highlight"
	"github.com/suplatzigram/go-engagement-cache/internal/kv"
	"github.com/suplatzigram/go-engagement-cache/invalidate"
	"github.com/suplatzigram/go-engagement-cache/pagecache"
	"github.com/suplatzigram/go-engagement-cache/pkg/config"
	"github.com/suplatzigram/go-engagement-cache/realtime"
	"github.com/suplatzigram/go-engagement-cache/reconcile"
	"github.com/suplatzigram/go-engagement-cache/repositorycache"
	"github.com/suplatzigram/go-engagement-cache/store"
	"github.com/suplatzigram/go-engagement-cache/syncbridge"
)

// Container holds the wired engagement components. Build one with New and
// tear it down with Close.
type Container struct {
	cfg config.Config
	log *slog.Logger

	kvStore       kv.Store
	redisConn     *kv.Redis
	redisBacked   bool
	counters      counter.Store
	pages         pagecache.Cache
	frame         cache.CacheService
	keySerializer cache.KeySerializer
	routes        *invalidate.RouteCache
	coordinator   *invalidate.Coordinator

	db         *bun.DB
	posts      *store.Posts
	bridge     *syncbridge.Bridge
	channel    *realtime.Channel
	feedSvc    *feed.Service
	highlights *highlight.Service
}

// New builds the full stack from cfg. The external cache degrades to an
// in-process store when Redis is unreachable, and the durable store plus the
// bridge are only wired when a database DSN is configured.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*Container, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Container{cfg: cfg, log: log}

	frameCfg := cache.DefaultConfig()
	frameCfg.Capacity = cfg.Cache.FrameCapacity
	frameCfg.TTL = cfg.Cache.FrameTTL()
	frame, err := cache.NewCacheService(frameCfg)
	if err != nil {
		return nil, fmt.Errorf("di: framework cache: %w", err)
	}
	c.frame = frame
	c.keySerializer = cache.NewDefaultKeySerializer()

	c.wireKV(ctx)
	c.pages = pagecache.New(c.kvStore,
		pagecache.WithTagTTL(cfg.Cache.TagTTL()),
		pagecache.WithLogger(log),
	)
	c.routes = invalidate.NewRouteCache()
	c.coordinator = invalidate.NewCoordinator(c.pages, c.frame, c.routes, log)

	if err := c.wireDurable(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// wireKV connects the external cache, falling back to the in-process store
// when Redis is unreachable so the service keeps serving.
func (c *Container) wireKV(ctx context.Context) {
	r, err := kv.NewRedis(ctx, kv.RedisOptions{
		Addr:     c.cfg.Redis.Address,
		Password: c.cfg.Redis.Password,
		DB:       c.cfg.Redis.DB,
		TLS:      c.cfg.Redis.TLS,
	})
	if err != nil {
		c.log.Warn("redis unreachable, degrading to in-process store",
			"address", c.cfg.Redis.Address, "error", err)
		c.kvStore = kv.NewMemory()
		c.counters = counter.NewMemoryStore()
		return
	}
	c.kvStore = r
	c.redisConn = r
	c.redisBacked = true
	c.counters = counter.NewRedisStore(r.Client())
	c.channel = realtime.NewChannel(r.Client(), realtime.DefaultChannel, c.log)
}

// wireDurable opens the relational store and the bridge when configured.
func (c *Container) wireDurable(ctx context.Context) error {
	if c.cfg.Database.DSN == "" {
		return nil
	}

	var (
		db  *bun.DB
		err error
	)
	switch c.cfg.Database.Driver {
	case "sqlite":
		db, err = store.OpenSQLite(c.cfg.Database.DSN)
		if err == nil {
			err = store.CreateSchema(ctx, db)
		}
	default:
		db, err = store.OpenPostgres(c.cfg.Database.DSN)
	}
	if err != nil {
		return fmt.Errorf("di: durable store: %w", err)
	}
	c.db = db

	var pub syncbridge.Publisher
	if c.channel != nil {
		pub = c.channel
	}
	c.bridge = syncbridge.New(store.NewRatings(db), pub, syncbridge.Options{
		QueueSize:    c.cfg.Bridge.QueueSize,
		MaxAttempts:  c.cfg.Bridge.MaxAttempts,
		Backoff:      c.cfg.Bridge.Backoff(),
		FlushTimeout: c.cfg.Bridge.FlushTimeout(),
		Logger:       c.log,
	})

	c.posts = store.NewPosts(db)
	c.feedSvc = feed.New(c.posts, c.pages, c.counters, feed.Options{
		PageTTL: c.cfg.Cache.PageTTL(),
		Logger:  c.log,
	})
	c.highlights = highlight.New(store.NewHighlights(db), c.coordinator, c.log)
	return nil
}

// Counters returns the authoritative like-counter store.
func (c *Container) Counters() counter.Store { return c.counters }

// Pages returns the tagged page cache.
func (c *Container) Pages() pagecache.Cache { return c.pages }

// CacheService returns the framework data cache.
func (c *Container) CacheService() cache.CacheService { return c.frame }

// KeySerializer returns the shared key serializer.
func (c *Container) KeySerializer() cache.KeySerializer { return c.keySerializer }

// Coordinator returns the invalidation coordinator.
func (c *Container) Coordinator() *invalidate.Coordinator { return c.coordinator }

// Routes returns the router-level staleness tracker.
func (c *Container) Routes() *invalidate.RouteCache { return c.routes }

// Posts returns the durable post source, or nil when no database is
// configured.
func (c *Container) Posts() *store.Posts { return c.posts }

// Feed returns the feed service, or nil when no database is configured.
func (c *Container) Feed() *feed.Service { return c.feedSvc }

// Highlights returns the highlight service, or nil when no database is
// configured.
func (c *Container) Highlights() *highlight.Service { return c.highlights }

// Bridge returns the synchronization bridge, or nil when no database is
// configured.
func (c *Container) Bridge() *syncbridge.Bridge { return c.bridge }

// Channel returns the realtime pub/sub channel, or nil in memory mode.
func (c *Container) Channel() *realtime.Channel { return c.channel }

// RedisBacked reports whether the external cache is live or degraded to the
// in-process fallback.
func (c *Container) RedisBacked() bool { return c.redisBacked }

// NewReconciler creates the per-session reconciliation layer.
func (c *Container) NewReconciler(sessionID string) *reconcile.Reconciler {
	var syncer reconcile.Syncer
	if c.bridge != nil {
		syncer = c.bridge
	}
	return reconcile.New(c.counters, syncer, sessionID, reconcile.Options{
		ToggleTimeout: c.cfg.Client.ToggleTimeout(),
		Logger:        c.log,
	})
}

// NewCachedRepository wraps base with the container's cache service and key
// serializer. Callers that want writes fanned out to the page and route
// caches add a repositorycache.WithAfterWrite hook invoking the coordinator.
//
// Methods cannot carry type parameters, so this is a package-level function.
func NewCachedRepository[T any](c *Container, base repositorycache.Repository[T], opts ...repositorycache.Option[T]) *repositorycache.CachedRepository[T] {
	opts = append([]repositorycache.Option[T]{repositorycache.WithLogger[T](c.log)}, opts...)
	return repositorycache.New(base, c.frame, c.keySerializer, opts...)
}

// Close releases the container's resources in dependency order. The Redis
// connection goes last: the bridge drains through it (realtime publishes)
// before it is torn down.
func (c *Container) Close() {
	if c.bridge != nil {
		c.bridge.Close()
	}
	if c.db != nil {
		c.db.Close()
	}
	if c.redisConn != nil {
		if err := c.redisConn.Close(); err != nil {
			c.log.Warn("redis connection close failed", "error", err)
		}
	}
}
