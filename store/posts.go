package store

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// Posts queries the durable post table. It backs the feed service's cache
// misses and the health check.
type Posts struct {
	db *bun.DB
}

// NewPosts creates a post source on the given database.
func NewPosts(db *bun.DB) *Posts {
	return &Posts{db: db}
}

// ListPage returns posts ordered by creation time descending, newest first,
// for the range [offset, offset+limit).
func (s *Posts) ListPage(ctx context.Context, offset, limit int) ([]Post, error) {
	var posts []Post
	err := s.db.NewSelect().
		Model(&posts).
		OrderExpr("p.created_at DESC").
		Offset(offset).
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list page: %w", err)
	}
	return posts, nil
}

// ListRanked returns posts ordered by like count, breaking ties by recency.
func (s *Posts) ListRanked(ctx context.Context, offset, limit int) ([]Post, error) {
	var posts []Post
	err := s.db.NewSelect().
		Model(&posts).
		OrderExpr("p.like_count DESC").
		OrderExpr("p.created_at DESC").
		Offset(offset).
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list ranked: %w", err)
	}
	return posts, nil
}

// ByIDs returns the posts with the given IDs, in no particular order.
func (s *Posts) ByIDs(ctx context.Context, ids []string) ([]Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var posts []Post
	err := s.db.NewSelect().
		Model(&posts).
		Where("p.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: posts by ids: %w", err)
	}
	return posts, nil
}

// Count returns the total number of posts.
func (s *Posts) Count(ctx context.Context) (int, error) {
	count, err := s.db.NewSelect().Model((*Post)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: count posts: %w", err)
	}
	return count, nil
}

// Create inserts a new post.
func (s *Posts) Create(ctx context.Context, post *Post) error {
	if _, err := s.db.NewInsert().Model(post).Exec(ctx); err != nil {
		return fmt.Errorf("store: create post: %w", err)
	}
	return nil
}
