package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Ratings is the durability surface the synchronization bridge writes
// through. Upserts are keyed by (post, session) so redundant bridge calls
// land on the same row.
type Ratings struct {
	db *bun.DB
}

// NewRatings creates a rating sink on the given database.
func NewRatings(db *bun.DB) *Ratings {
	return &Ratings{db: db}
}

// UpsertRating records a session's like state for a post.
func (s *Ratings) UpsertRating(ctx context.Context, postID, sessionID string, liked bool) error {
	rating := &Rating{
		ID:        uuid.New().String(),
		PostID:    postID,
		SessionID: sessionID,
		Liked:     liked,
		UpdatedAt: time.Now().UTC(),
	}

	_, err := s.db.NewInsert().
		Model(rating).
		On("CONFLICT (post_id, session_id) DO UPDATE").
		Set("liked = EXCLUDED.liked").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: upsert rating %s/%s: %w", postID, sessionID, err)
	}
	return nil
}

// SetLikeCount writes the counter store's truth into the post's counter
// column. The column trails the counter store between bridge flushes.
func (s *Ratings) SetLikeCount(ctx context.Context, postID string, count int64) error {
	_, err := s.db.NewUpdate().
		Model((*Post)(nil)).
		Set("like_count = ?", count).
		Where("id = ?", postID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: set like count %s: %w", postID, err)
	}
	return nil
}

// LikedSessions returns the sessions that currently like a post, for
// reconciliation tooling.
func (s *Ratings) LikedSessions(ctx context.Context, postID string) ([]string, error) {
	var sessions []string
	err := s.db.NewSelect().
		Model((*Rating)(nil)).
		Column("session_id").
		Where("post_id = ?", postID).
		Where("liked = ?", true).
		Scan(ctx, &sessions)
	if err != nil {
		return nil, fmt.Errorf("store: liked sessions %s: %w", postID, err)
	}
	return sessions, nil
}
