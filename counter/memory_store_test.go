package counter

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryStore_ToggleRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.Toggle(ctx, "post-1", "session-a")
	if err != nil {
		t.Fatalf("first toggle failed: %v", err)
	}
	if !first.Liked || first.Count != 1 {
		t.Errorf("expected liked with count 1, got %+v", first)
	}

	second, err := store.Toggle(ctx, "post-1", "session-a")
	if err != nil {
		t.Fatalf("second toggle failed: %v", err)
	}
	if second.Liked || second.Count != 0 {
		t.Errorf("expected original state after round trip, got %+v", second)
	}
}

func TestMemoryStore_CountsDefaultToZero(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Toggle(ctx, "touched", "session-a")

	counts, err := store.Counts(ctx, []string{"touched", "untouched"})
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts["touched"] != 1 {
		t.Errorf("expected count 1 for touched post, got %d", counts["touched"])
	}
	if counts["untouched"] != 0 {
		t.Errorf("expected count 0 for untouched post, got %d", counts["untouched"])
	}
}

func TestMemoryStore_LikedPerSession(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Toggle(ctx, "post-1", "session-a")

	likedA, err := store.Liked(ctx, []string{"post-1", "post-2"}, "session-a")
	if err != nil {
		t.Fatalf("Liked failed: %v", err)
	}
	if !likedA["post-1"] || likedA["post-2"] {
		t.Errorf("unexpected liked map for session-a: %v", likedA)
	}

	likedB, err := store.Liked(ctx, []string{"post-1"}, "session-b")
	if err != nil {
		t.Fatalf("Liked failed: %v", err)
	}
	if likedB["post-1"] {
		t.Error("session-b should not have liked post-1")
	}
}

func TestMemoryStore_ConcurrentTogglesDistinctSessions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const sessions = 50
	var wg sync.WaitGroup
	wg.Add(sessions)
	for i := 0; i < sessions; i++ {
		go func(n int) {
			defer wg.Done()
			store.Toggle(ctx, "post-1", string(rune('a'+n%26))+string(rune('0'+n/26)))
		}(i)
	}
	wg.Wait()

	counts, _ := store.Counts(ctx, []string{"post-1"})
	if counts["post-1"] != sessions {
		t.Errorf("expected %d likes, got %d (lost update)", sessions, counts["post-1"])
	}
}

func TestMemoryStore_CountClampedAtZero(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	// Simulate a cold counter racing a warm liked set: the set says the
	// session liked the post but the counter was never incremented.
	store.sets["post-1"] = map[string]struct{}{"session-a": {}}

	res, err := store.Toggle(ctx, "post-1", "session-a")
	if err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if res.Liked {
		t.Error("expected unlike")
	}
	if res.Count != 0 {
		t.Errorf("expected count clamped at 0, got %d", res.Count)
	}
}
