// Package highlight manages profile-pinned posts. Highlights live on profile
// pages, so every mutation invalidates the profile's cached surfaces through
// the coordinator.
package highlight

import (
	"context"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/suplatzigram/go-engagement-cache/invalidate"
	"github.com/suplatzigram/go-engagement-cache/store"
)

// Positions run 1 through MaxPositions, left to right on the profile page.
const MaxPositions = 3

// Store is the durable highlight backend, satisfied by store.Highlights.
type Store interface {
	Pin(ctx context.Context, profileHandle, postID string, position int) error
	Unpin(ctx context.Context, profileHandle string, position int) error
	List(ctx context.Context, profileHandle string) ([]store.Highlight, error)
}

// Invalidator receives profile-change notifications, satisfied by
// invalidate.Coordinator.
type Invalidator interface {
	OnProfileUpdated(ctx context.Context, handle string) invalidate.Report
}

// Service validates and applies highlight mutations.
type Service struct {
	highlights Store
	inv        Invalidator
	log        *slog.Logger
}

// New creates a highlight service. The invalidator may be nil when no caches
// sit in front of profile pages.
func New(highlights Store, inv Invalidator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{highlights: highlights, inv: inv, log: log}
}

// PinRequest is one pin mutation.
type PinRequest struct {
	ProfileHandle string `json:"profile_handle"`
	PostID        string `json:"post_id"`
	Position      int    `json:"position"`
}

// Validate checks the request fields.
func (r PinRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ProfileHandle, validation.Required),
		validation.Field(&r.PostID, validation.Required),
		validation.Field(&r.Position, validation.Required, validation.Min(1), validation.Max(MaxPositions)),
	)
}

// Pin places a post at a position, replacing that position's previous
// occupant. A post a profile already pins is rejected with
// store.ErrDuplicatePost regardless of position.
func (s *Service) Pin(ctx context.Context, req PinRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("highlight: invalid pin request: %w", err)
	}
	if err := s.highlights.Pin(ctx, req.ProfileHandle, req.PostID, req.Position); err != nil {
		return err
	}
	s.invalidate(ctx, req.ProfileHandle)
	return nil
}

// Unpin clears a position. Clearing an empty position succeeds; the profile's
// cached surfaces are invalidated either way, since the store does not report
// whether a row was removed.
func (s *Service) Unpin(ctx context.Context, profileHandle string, position int) error {
	if profileHandle == "" {
		return fmt.Errorf("highlight: profile handle required")
	}
	if position < 1 || position > MaxPositions {
		return fmt.Errorf("highlight: position %d out of range 1..%d", position, MaxPositions)
	}
	if err := s.highlights.Unpin(ctx, profileHandle, position); err != nil {
		return err
	}
	s.invalidate(ctx, profileHandle)
	return nil
}

// List returns a profile's highlights ordered by position.
func (s *Service) List(ctx context.Context, profileHandle string) ([]store.Highlight, error) {
	return s.highlights.List(ctx, profileHandle)
}

func (s *Service) invalidate(ctx context.Context, handle string) {
	if s.inv == nil {
		return
	}
	if report := s.inv.OnProfileUpdated(ctx, handle); !report.Ok() {
		s.log.Warn("highlight invalidation incomplete", "handle", handle, "error", report.Err())
	}
}
