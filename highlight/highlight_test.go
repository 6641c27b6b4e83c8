package highlight

import (
	"context"
	"errors"
	"testing"

	"github.com/suplatzigram/go-engagement-cache/invalidate"
	"github.com/suplatzigram/go-engagement-cache/store"
)

type mockStore struct {
	pins    []PinRequest
	unpins  int
	pinErr  error
	entries []store.Highlight
}

func (m *mockStore) Pin(ctx context.Context, profileHandle, postID string, position int) error {
	if m.pinErr != nil {
		return m.pinErr
	}
	m.pins = append(m.pins, PinRequest{ProfileHandle: profileHandle, PostID: postID, Position: position})
	return nil
}

func (m *mockStore) Unpin(ctx context.Context, profileHandle string, position int) error {
	m.unpins++
	return nil
}

func (m *mockStore) List(ctx context.Context, profileHandle string) ([]store.Highlight, error) {
	return m.entries, nil
}

type mockInvalidator struct {
	handles []string
}

func (m *mockInvalidator) OnProfileUpdated(ctx context.Context, handle string) invalidate.Report {
	m.handles = append(m.handles, handle)
	return invalidate.Report{Layers: 3}
}

func TestPinValidRequest(t *testing.T) {
	ms := &mockStore{}
	inv := &mockInvalidator{}
	svc := New(ms, inv, nil)

	err := svc.Pin(context.Background(), PinRequest{ProfileHandle: "ana", PostID: "post-1", Position: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ms.pins) != 1 {
		t.Fatalf("expected 1 pin, got %d", len(ms.pins))
	}
	if len(inv.handles) != 1 || inv.handles[0] != "ana" {
		t.Errorf("expected invalidation for ana, got %v", inv.handles)
	}
}

func TestPinRejectsOutOfRangePosition(t *testing.T) {
	svc := New(&mockStore{}, nil, nil)
	for _, pos := range []int{0, -1, 4, 10} {
		err := svc.Pin(context.Background(), PinRequest{ProfileHandle: "ana", PostID: "post-1", Position: pos})
		if err == nil {
			t.Errorf("expected position %d to be rejected", pos)
		}
	}
}

func TestPinRejectsMissingFields(t *testing.T) {
	svc := New(&mockStore{}, nil, nil)
	if err := svc.Pin(context.Background(), PinRequest{Position: 1}); err == nil {
		t.Error("expected missing handle and post to be rejected")
	}
}

func TestPinDuplicatePostPropagatesWithoutInvalidation(t *testing.T) {
	ms := &mockStore{pinErr: store.ErrDuplicatePost}
	inv := &mockInvalidator{}
	svc := New(ms, inv, nil)

	err := svc.Pin(context.Background(), PinRequest{ProfileHandle: "ana", PostID: "post-1", Position: 1})
	if !errors.Is(err, store.ErrDuplicatePost) {
		t.Fatalf("expected ErrDuplicatePost, got %v", err)
	}
	if len(inv.handles) != 0 {
		t.Error("expected no invalidation after a failed pin")
	}
}

func TestUnpinEmptyPositionStillInvalidates(t *testing.T) {
	ms := &mockStore{}
	inv := &mockInvalidator{}
	svc := New(ms, inv, nil)

	if err := svc.Unpin(context.Background(), "ana", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.unpins != 1 {
		t.Errorf("expected 1 unpin, got %d", ms.unpins)
	}
	if len(inv.handles) != 1 {
		t.Errorf("expected 1 invalidation, got %d", len(inv.handles))
	}
}

func TestUnpinRejectsBadPosition(t *testing.T) {
	svc := New(&mockStore{}, nil, nil)
	if err := svc.Unpin(context.Background(), "ana", 0); err == nil {
		t.Error("expected position 0 to be rejected")
	}
	if err := svc.Unpin(context.Background(), "", 1); err == nil {
		t.Error("expected empty handle to be rejected")
	}
}
