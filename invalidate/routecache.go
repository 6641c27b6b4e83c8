package invalidate

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// RouteCache tracks router-level cached paths. Rendering a path records it;
// the coordinator marks paths stale when the data behind them changes, and
// the render layer re-renders stale paths on next request.
type RouteCache struct {
	rendered *xsync.MapOf[string, time.Time]
	stale    *xsync.MapOf[string, time.Time]
}

// NewRouteCache creates an empty route cache.
func NewRouteCache() *RouteCache {
	return &RouteCache{
		rendered: xsync.NewMapOf[string, time.Time](),
		stale:    xsync.NewMapOf[string, time.Time](),
	}
}

// Rendered records that a path was served from a fresh render.
func (r *RouteCache) Rendered(path string) {
	r.rendered.Store(path, time.Now())
	r.stale.Delete(path)
}

// MarkStale flags paths whose cached render can no longer be trusted.
// Marking an unknown path is harmless.
func (r *RouteCache) MarkStale(paths ...string) {
	now := time.Now()
	for _, path := range paths {
		r.stale.Store(path, now)
	}
}

// MarkPrefixStale flags every rendered path under the given prefix. Feed
// surfaces span several paths ("/", "/ranked", pagination variants), so the
// coordinator invalidates them as a group.
func (r *RouteCache) MarkPrefixStale(prefix string) {
	now := time.Now()
	r.rendered.Range(func(path string, _ time.Time) bool {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			r.stale.Store(path, now)
		}
		return true
	})
}

// IsStale reports whether a path needs re-rendering. Paths never rendered
// are not stale; they are simply unknown.
func (r *RouteCache) IsStale(path string) bool {
	staleAt, ok := r.stale.Load(path)
	if !ok {
		return false
	}
	renderedAt, rendered := r.rendered.Load(path)
	if !rendered {
		return true
	}
	return !renderedAt.After(staleAt)
}
