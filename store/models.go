// Package store holds the durable relational models and query sources. The
// relational database is the durability target, not the read-time source of
// truth for engagement: like counts here trail the counter store and are
// caught up by the synchronization bridge.
package store

import (
	"time"

	"github.com/uptrace/bun"
)

// Post is one published photo post. AuthorHandle is denormalized onto the
// row so feed pages render without a join.
type Post struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	ID           string    `bun:"id,pk"`
	AuthorID     string    `bun:"author_id,notnull"`
	AuthorHandle string    `bun:"author_handle,notnull"`
	ImageRef     string    `bun:"image_ref,notnull"`
	Caption      string    `bun:"caption"`
	LikeCount    int64     `bun:"like_count,notnull,default:0"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

// Profile is a user profile, addressed by handle everywhere outside the
// database.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:pr"`

	ID          string    `bun:"id,pk"`
	Handle      string    `bun:"handle,notnull,unique"`
	DisplayName string    `bun:"display_name"`
	AvatarRef   string    `bun:"avatar_ref"`
	Bio         string    `bun:"bio"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

// Rating is the durable record of one session's like state on one post,
// unique per (post, session) so the bridge's upserts are idempotent.
type Rating struct {
	bun.BaseModel `bun:"table:ratings,alias:r"`

	ID        string    `bun:"id,pk"`
	PostID    string    `bun:"post_id,notnull,unique:ratings_post_session"`
	SessionID string    `bun:"session_id,notnull,unique:ratings_post_session"`
	Liked     bool      `bun:"liked,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// Highlight is a profile-pinned post. Position is 1 to 3, unique per
// (profile, position); uniqueness per (profile, post) is enforced by the
// highlight service since a column can only join one tag-level unique group.
type Highlight struct {
	bun.BaseModel `bun:"table:highlights,alias:h"`

	ID            string    `bun:"id,pk"`
	ProfileHandle string    `bun:"profile_handle,notnull,unique:highlights_profile_position"`
	PostID        string    `bun:"post_id,notnull"`
	Position      int       `bun:"position,notnull,unique:highlights_profile_position"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}
