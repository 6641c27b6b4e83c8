package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ErrDuplicatePost reports an attempt to pin a post a profile already pins.
var ErrDuplicatePost = errors.New("store: post already highlighted by profile")

// Highlights persists profile-pinned posts.
type Highlights struct {
	db *bun.DB
}

// NewHighlights creates a highlight store on the given database.
func NewHighlights(db *bun.DB) *Highlights {
	return &Highlights{db: db}
}

// Pin places a post at the given position for a profile, replacing whatever
// occupied that position. Pinning a post the profile already pins fails with
// ErrDuplicatePost, even at a different position.
func (s *Highlights) Pin(ctx context.Context, profileHandle, postID string, position int) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*Highlight)(nil)).
			Where("profile_handle = ?", profileHandle).
			Where("post_id = ?", postID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("store: check highlight: %w", err)
		}
		if exists {
			return ErrDuplicatePost
		}

		// Position replacement: clear the slot before inserting.
		_, err = tx.NewDelete().
			Model((*Highlight)(nil)).
			Where("profile_handle = ?", profileHandle).
			Where("position = ?", position).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("store: clear highlight position: %w", err)
		}

		highlight := &Highlight{
			ID:            uuid.New().String(),
			ProfileHandle: profileHandle,
			PostID:        postID,
			Position:      position,
			CreatedAt:     time.Now().UTC(),
		}
		if _, err := tx.NewInsert().Model(highlight).Exec(ctx); err != nil {
			return fmt.Errorf("store: insert highlight: %w", err)
		}
		return nil
	})
}

// Unpin removes the highlight at a position. Removing an empty position is a
// no-op.
func (s *Highlights) Unpin(ctx context.Context, profileHandle string, position int) error {
	_, err := s.db.NewDelete().
		Model((*Highlight)(nil)).
		Where("profile_handle = ?", profileHandle).
		Where("position = ?", position).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: unpin highlight: %w", err)
	}
	return nil
}

// List returns a profile's highlights ordered by position.
func (s *Highlights) List(ctx context.Context, profileHandle string) ([]Highlight, error) {
	var highlights []Highlight
	err := s.db.NewSelect().
		Model(&highlights).
		Where("profile_handle = ?", profileHandle).
		OrderExpr("h.position ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list highlights: %w", err)
	}
	return highlights, nil
}
