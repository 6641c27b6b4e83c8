// Package invalidate maps domain events to the cache surfaces they make
// stale: page-cache tags in the external cache, key prefixes in the framework
// data cache, and router-level cached paths. Layers are purged sequentially
// but independently: one layer failing never blocks the others, and every
// purge is idempotent. Callers invoke the coordinator only after the
// authoritative mutation has succeeded; the short TTLs on both cache layers
// backstop any purge that is missed or arrives late.
package invalidate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/suplatzigram/go-engagement-cache/cache"
	"github.com/suplatzigram/go-engagement-cache/pagecache"
)

// Tags purged whenever engagement state changes. A like toggle reshapes every
// feed surface: counts on post pages, ordering on the ranked feed, snapshots
// embedded in profile grids.
var engagementTags = []string{"posts", "home", "ranked", "profiles"}

// LayerError records which invalidation layer failed and why.
type LayerError struct {
	Layer string
	Err   error
}

func (e LayerError) Error() string {
	return e.Layer + ": " + e.Err.Error()
}

// Report is the per-layer outcome of one invalidation fan-out.
type Report struct {
	Layers int
	Failed []LayerError
}

// Ok reports whether every layer purged cleanly.
func (r Report) Ok() bool { return len(r.Failed) == 0 }

// Partial reports whether some layers purged and others failed. Partial
// results are logged, never retried synchronously; TTL expiry heals the
// layer that missed its purge.
func (r Report) Partial() bool {
	return len(r.Failed) > 0 && len(r.Failed) < r.Layers
}

// Err summarizes the failed layers, or nil when all succeeded.
func (r Report) Err() error {
	if r.Ok() {
		return nil
	}
	msgs := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		msgs[i] = f.Error()
	}
	return fmt.Errorf("invalidate: %s", strings.Join(msgs, "; "))
}

// Coordinator fans domain events out to every cache layer.
type Coordinator struct {
	pages  pagecache.Cache
	frame  cache.CacheService
	routes *RouteCache
	log    *slog.Logger
}

// NewCoordinator wires the three invalidation surfaces together. The route
// cache may be nil when no router-level caching exists (library embedding).
func NewCoordinator(pages pagecache.Cache, frame cache.CacheService, routes *RouteCache, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{pages: pages, frame: frame, routes: routes, log: log}
}

// OnLikeToggled purges every feed surface after a successful like toggle.
func (c *Coordinator) OnLikeToggled(ctx context.Context) Report {
	return c.purge(ctx, engagementTags, []string{"/", "/ranked"})
}

// OnPostCreated purges the same surfaces as a toggle: a new post changes
// every feed's first page.
func (c *Coordinator) OnPostCreated(ctx context.Context) Report {
	return c.purge(ctx, engagementTags, []string{"/", "/ranked"})
}

// OnProfileUpdated purges the profile's own tag plus the global profiles tag
// and marks the profile's route stale.
func (c *Coordinator) OnProfileUpdated(ctx context.Context, handle string) Report {
	tags := []string{"profile:" + handle, "profiles"}
	return c.purge(ctx, tags, []string{"/profiles/" + handle})
}

func (c *Coordinator) purge(ctx context.Context, tags []string, routes []string) Report {
	report := Report{}

	// Layer 1: external page cache, one purge per tag. A tag failing does
	// not stop the remaining tags.
	report.Layers++
	var pageErr error
	for _, tag := range tags {
		if err := c.pages.PurgeTag(ctx, tag); err != nil {
			pageErr = err
			c.log.Warn("page cache purge failed", "tag", tag, "error", err)
		}
	}
	if pageErr != nil {
		report.Failed = append(report.Failed, LayerError{Layer: "pagecache", Err: pageErr})
	}

	// Layer 2: framework data cache by key prefix. Tag names double as the
	// leading key segment in the framework cache namespace.
	report.Layers++
	var frameErr error
	for _, tag := range tags {
		if err := c.frame.DeleteByPrefix(ctx, tag+cache.KeySeparator); err != nil {
			frameErr = err
			c.log.Warn("framework cache purge failed", "prefix", tag, "error", err)
		}
	}
	if frameErr != nil {
		report.Failed = append(report.Failed, LayerError{Layer: "framework", Err: frameErr})
	}

	// Layer 3: router-level cached paths. In-process, cannot fail.
	if c.routes != nil {
		report.Layers++
		for _, route := range routes {
			c.routes.MarkPrefixStale(route)
			c.routes.MarkStale(route)
		}
	}

	if report.Partial() {
		c.log.Warn("invalidation partially failed", "failed_layers", len(report.Failed), "layers", report.Layers)
	}
	return report
}
