// Package feed assembles paginated feed pages read-through: cached page when
// present, durable source on a miss, with live like counts overlaid from the
// counter store on every read. The page cache is an optimization only; any
// cache trouble degrades to a source read.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/suplatzigram/go-engagement-cache/counter"
	"github.com/suplatzigram/go-engagement-cache/pagecache"
	"github.com/suplatzigram/go-engagement-cache/store"
)

// Feed surface names. Each maps to its own key space and tag set in the page
// cache.
const (
	Home   = "home"
	Ranked = "ranked"
)

// ErrUnknownFeed is returned for a feed name that is not a known surface.
var ErrUnknownFeed = errors.New("feed: unknown feed")

// healthSampleSize bounds how many recent posts the drift check inspects.
const healthSampleSize = 20

// defaultPageLimit is the page size served when the caller does not name one,
// and the page the health probe checks for cache presence.
const defaultPageLimit = 20

// PostSource is the durable side of the read-through, satisfied by
// store.Posts.
type PostSource interface {
	ListPage(ctx context.Context, offset, limit int) ([]store.Post, error)
	ListRanked(ctx context.Context, offset, limit int) ([]store.Post, error)
	Count(ctx context.Context) (int, error)
}

// Options tunes a Service.
type Options struct {
	// PageTTL is the expiry on cached pages. TTL is the backstop for any
	// invalidation the coordinator misses.
	PageTTL time.Duration

	Logger *slog.Logger
}

// Service serves feed pages.
type Service struct {
	posts    PostSource
	pages    pagecache.Cache
	counters counter.Store
	ttl      time.Duration
	log      *slog.Logger
}

// New creates a feed service.
func New(posts PostSource, pages pagecache.Cache, counters counter.Store, opts Options) *Service {
	if opts.PageTTL <= 0 {
		opts.PageTTL = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		posts:    posts,
		pages:    pages,
		counters: counters,
		ttl:      opts.PageTTL,
		log:      opts.Logger,
	}
}

func tagsFor(name string) []string {
	return []string{"posts", name}
}

// Page returns one page of the named feed. Cache misses fall through to the
// durable source, and the rebuilt page is written back tagged for the
// invalidation coordinator. Like counts are overlaid from the counter store
// best-effort on every return path.
func (s *Service) Page(ctx context.Context, name string, offset, limit int) (pagecache.Page, error) {
	if name != Home && name != Ranked {
		return pagecache.Page{}, fmt.Errorf("%w: %q", ErrUnknownFeed, name)
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}

	key := pagecache.Key{Feed: name, Offset: offset, Limit: limit}
	page, err := s.pages.Read(ctx, key)
	if err == nil {
		s.overlayCounts(ctx, &page)
		return page, nil
	}
	if !errors.Is(err, pagecache.ErrAbsent) {
		s.log.Warn("page cache read failed, falling back to source", "key", key.String(), "error", err)
	}

	page, err = s.build(ctx, name, offset, limit)
	if err != nil {
		return pagecache.Page{}, err
	}

	if err := s.pages.Write(ctx, key, page, tagsFor(name), s.ttl); err != nil {
		s.log.Warn("page cache write-back failed", "key", key.String(), "error", err)
	}

	s.overlayCounts(ctx, &page)
	return page, nil
}

// build fetches one page past the requested limit from the durable source so
// HasMore reflects the table, then trims.
func (s *Service) build(ctx context.Context, name string, offset, limit int) (pagecache.Page, error) {
	var posts []store.Post
	var err error
	switch name {
	case Ranked:
		posts, err = s.posts.ListRanked(ctx, offset, limit+1)
	default:
		posts, err = s.posts.ListPage(ctx, offset, limit+1)
	}
	if err != nil {
		return pagecache.Page{}, fmt.Errorf("feed: load %s page: %w", name, err)
	}

	page := pagecache.Page{HasMore: len(posts) > limit}
	if page.HasMore {
		posts = posts[:limit]
	}
	page.Posts = make([]pagecache.PostSummary, 0, len(posts))
	for _, p := range posts {
		page.Posts = append(page.Posts, pagecache.PostSummary{
			ID:        p.ID,
			ImageRef:  p.ImageRef,
			Caption:   p.Caption,
			LikeCount: p.LikeCount,
			Author: pagecache.AuthorSummary{
				ID:     p.AuthorID,
				Handle: p.AuthorHandle,
			},
			CreatedAt: p.CreatedAt,
		})
	}
	return page, nil
}

// overlayCounts replaces each post's like count with the counter store's
// current value. Failures leave the page's counts as loaded; a stale count is
// better than a failed page.
func (s *Service) overlayCounts(ctx context.Context, page *pagecache.Page) {
	if len(page.Posts) == 0 {
		return
	}
	ids := make([]string, len(page.Posts))
	for i, p := range page.Posts {
		ids[i] = p.ID
	}
	counts, err := s.counters.Counts(ctx, ids)
	if err != nil {
		s.log.Warn("counter overlay skipped", "error", err)
		return
	}
	for i := range page.Posts {
		if c, ok := counts[page.Posts[i].ID]; ok {
			page.Posts[i].LikeCount = c
		}
	}
}

// Issue kinds reported by the health check.
const (
	IssueCountDrift     = "count_drift"
	IssuePageCacheEmpty = "page_cache_empty"
)

// Issue is one divergence found by the health check.
type Issue struct {
	Kind         string `json:"kind"`
	Feed         string `json:"feed,omitempty"`
	PostID       string `json:"post_id,omitempty"`
	CounterCount int64  `json:"counter_count,omitempty"`
	DurableCount int64  `json:"durable_count,omitempty"`
}

// Health is the result of a consistency probe.
type Health struct {
	Healthy    bool    `json:"healthy"`
	PostsTotal int     `json:"posts_total"`
	Issues     []Issue `json:"issues,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// CheckHealth compares the cache layers against the relational source: each
// feed surface's first page is probed in the page cache, and a sample of
// recent posts has its counter-store counts checked against the durable
// copies. Divergence shows up as issues but does not mark the service
// unhealthy, since TTL write-back and the bridge heal both asynchronously; a
// failing backend does.
func (s *Service) CheckHealth(ctx context.Context) Health {
	total, err := s.posts.Count(ctx)
	if err != nil {
		return Health{Error: fmt.Sprintf("post source: %v", err)}
	}

	posts, err := s.posts.ListPage(ctx, 0, healthSampleSize)
	if err != nil {
		return Health{PostsTotal: total, Error: fmt.Sprintf("post source: %v", err)}
	}

	h := Health{Healthy: true, PostsTotal: total}
	if len(posts) == 0 {
		return h
	}

	// An empty (or unreachable) page cache while the source holds rows is
	// the symptom the invalidation design exists to keep rare: every read
	// pays the source until write-back repopulates it.
	for _, name := range []string{Home, Ranked} {
		key := pagecache.Key{Feed: name, Offset: 0, Limit: defaultPageLimit}
		if _, err := s.pages.Read(ctx, key); errors.Is(err, pagecache.ErrAbsent) {
			h.Issues = append(h.Issues, Issue{
				Kind:         IssuePageCacheEmpty,
				Feed:         name,
				DurableCount: int64(total),
			})
		}
	}

	ids := make([]string, len(posts))
	durable := make(map[string]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
		durable[p.ID] = p.LikeCount
	}
	counts, err := s.counters.Counts(ctx, ids)
	if err != nil {
		h.Healthy = false
		h.Error = fmt.Sprintf("counter store: %v", err)
		return h
	}
	for _, id := range ids {
		if counts[id] != durable[id] {
			h.Issues = append(h.Issues, Issue{
				Kind:         IssueCountDrift,
				PostID:       id,
				CounterCount: counts[id],
				DurableCount: durable[id],
			})
		}
	}
	return h
}
