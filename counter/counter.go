// Package counter implements the authoritative like-counter store. Counts and
// liked-by-session sets live in the external key-value cache; the store is the
// read-after-write source of truth for "is this post liked" and "current
// count", ahead of the durable relational copy that the sync bridge maintains.
package counter

import "context"

// Result is the post-toggle truth returned by Toggle.
type Result struct {
	Liked bool  `json:"is_liked"`
	Count int64 `json:"like_count"`
}

// Store holds like counts and liked-session sets. Records are created lazily
// on first touch and never explicitly deleted.
type Store interface {
	// Counts returns the current like count for each requested post. Posts
	// with no record map to 0; absence of a subset never fails the batch.
	Counts(ctx context.Context, postIDs []string) (map[string]int64, error)

	// Liked reports, for one session, whether each post is in that post's
	// liked set.
	Liked(ctx context.Context, postIDs []string, sessionID string) (map[string]bool, error)

	// Toggle atomically flips the session's membership in the post's liked
	// set and adjusts the count by one, returning the resulting truth. The
	// flip and the count adjustment happen in a single atomic unit at the
	// store, never as a caller-side read-modify-write. On error the caller
	// must not assume the mutation applied.
	Toggle(ctx context.Context, postID, sessionID string) (Result, error)
}

const (
	countKeyPrefix = "likes:count:"
	setKeyPrefix   = "likes:set:"
)

func countKey(postID string) string { return countKeyPrefix + postID }
func setKey(postID string) string   { return setKeyPrefix + postID }
