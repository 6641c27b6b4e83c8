// Package pagecache stores paginated feed results in the external key-value
// cache, one entry per (feed, offset, limit) page. Entries carry invalidation
// tags that are tracked in a secondary index, so a like toggle or a new post
// purges whole feed surfaces without enumerating pages. TTLs make the cache
// self-healing when an invalidation is missed.
package pagecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/suplatzigram/go-engagement-cache/internal/kv"
)

// ErrAbsent is returned by Read on a miss, an expired entry, or a payload
// that fails schema validation.
var ErrAbsent = errors.New("pagecache: entry absent")

// payloadVersion guards the wire shape of cached pages. Entries written by an
// older build fail decoding closed and read as a miss.
const payloadVersion = 1

// Key identifies one cached page.
type Key struct {
	Feed   string
	Offset int
	Limit  int
}

// String renders the storage key for this page.
func (k Key) String() string {
	return fmt.Sprintf("feed:%s:%d:%d", k.Feed, k.Offset, k.Limit)
}

// AuthorSummary is the slice of profile data a feed page carries per post.
type AuthorSummary struct {
	ID     string `msgpack:"i"`
	Handle string `msgpack:"h"`
}

// PostSummary is one post as rendered in a feed page.
type PostSummary struct {
	ID        string        `msgpack:"i"`
	ImageRef  string        `msgpack:"img"`
	Caption   string        `msgpack:"c"`
	LikeCount int64         `msgpack:"l"`
	Author    AuthorSummary `msgpack:"a"`
	CreatedAt time.Time     `msgpack:"t"`
}

// Page is an ordered slice of a feed. A page holding fewer posts than its
// key's limit is the last page at fetch time.
type Page struct {
	Posts   []PostSummary `msgpack:"p"`
	HasMore bool          `msgpack:"m"`
}

type payload struct {
	Version int  `msgpack:"v"`
	Page    Page `msgpack:"d"`
}

// Cache is the page-cache contract consumed by the feed service and the
// invalidation coordinator.
type Cache interface {
	Read(ctx context.Context, key Key) (Page, error)
	Write(ctx context.Context, key Key, page Page, tags []string, ttl time.Duration) error
	PurgeTag(ctx context.Context, tag string) error
}

// TaggedCache implements Cache on a kv.Store, maintaining the tag index
// alongside the entries.
type TaggedCache struct {
	store  kv.Store
	tagTTL time.Duration
	log    *slog.Logger
}

// Option configures a TaggedCache.
type Option func(*TaggedCache)

// WithTagTTL bounds the lifetime of tag membership sets. Every Write that
// registers a key refreshes the tag's TTL, so only idle tags expire.
func WithTagTTL(ttl time.Duration) Option {
	return func(c *TaggedCache) { c.tagTTL = ttl }
}

// WithLogger sets the logger used for degraded-mode reporting.
func WithLogger(log *slog.Logger) Option {
	return func(c *TaggedCache) { c.log = log }
}

// New creates a TaggedCache on the given store.
func New(store kv.Store, opts ...Option) *TaggedCache {
	c := &TaggedCache{
		store:  store,
		tagTTL: 24 * time.Hour,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func tagKey(tag string) string {
	return "feedtag:" + tag
}

// Read returns the cached page at key, or ErrAbsent. Any store failure reads
// as a miss: callers have a durable source to fall back on, so a broken cache
// must never break the read path.
func (c *TaggedCache) Read(ctx context.Context, key Key) (Page, error) {
	raw, err := c.store.Get(ctx, key.String())
	if err != nil {
		if !errors.Is(err, kv.ErrMiss) {
			c.log.Warn("page cache read degraded to miss", "key", key.String(), "error", err)
		}
		return Page{}, ErrAbsent
	}

	var p payload
	if err := msgpack.Unmarshal(raw, &p); err != nil {
		c.log.Warn("page cache payload failed to decode, treating as miss", "key", key.String(), "error", err)
		return Page{}, ErrAbsent
	}
	if p.Version != payloadVersion {
		return Page{}, ErrAbsent
	}
	return p.Page, nil
}

// Write stores the page, registers its key under every tag, and sets expiry.
func (c *TaggedCache) Write(ctx context.Context, key Key, page Page, tags []string, ttl time.Duration) error {
	raw, err := msgpack.Marshal(payload{Version: payloadVersion, Page: page})
	if err != nil {
		return fmt.Errorf("pagecache: marshal %s: %w", key.String(), err)
	}

	if err := c.store.Set(ctx, key.String(), raw, ttl); err != nil {
		return fmt.Errorf("pagecache: write %s: %w", key.String(), err)
	}

	storageKey := key.String()
	for _, tag := range tags {
		if err := c.store.SAdd(ctx, tagKey(tag), []string{storageKey}, c.tagTTL); err != nil {
			return fmt.Errorf("pagecache: register %s under tag %s: %w", storageKey, tag, err)
		}
	}
	return nil
}

// PurgeTag deletes every entry registered under tag, then the tag's own
// membership set. Purging an absent tag is a no-op.
func (c *TaggedCache) PurgeTag(ctx context.Context, tag string) error {
	members, err := c.store.SMembers(ctx, tagKey(tag))
	if err != nil {
		return fmt.Errorf("pagecache: purge tag %s: %w", tag, err)
	}
	if len(members) > 0 {
		if err := c.store.Del(ctx, members...); err != nil {
			return fmt.Errorf("pagecache: purge tag %s members: %w", tag, err)
		}
	}
	if err := c.store.Del(ctx, tagKey(tag)); err != nil {
		return fmt.Errorf("pagecache: clear tag %s: %w", tag, err)
	}
	return nil
}
