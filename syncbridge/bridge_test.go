package syncbridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingSink captures durable writes and optionally fails a number of
// attempts before succeeding.
type recordingSink struct {
	mu        sync.Mutex
	upserts   []string
	counts    map[string]int64
	failNext  int
	publishes []string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{counts: make(map[string]int64)}
}

func (s *recordingSink) UpsertRating(_ context.Context, postID, sessionID string, liked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return errors.New("database unavailable")
	}
	s.upserts = append(s.upserts, postID+"/"+sessionID)
	return nil
}

func (s *recordingSink) SetLikeCount(_ context.Context, postID string, count int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[postID] = count
	return nil
}

func (s *recordingSink) PublishLikeCount(_ context.Context, postID string, count int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishes = append(s.publishes, postID)
	return nil
}

func (s *recordingSink) snapshot() (upserts []string, counts map[string]int64, publishes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	upserts = append([]string(nil), s.upserts...)
	counts = make(map[string]int64, len(s.counts))
	for k, v := range s.counts {
		counts[k] = v
	}
	publishes = append([]string(nil), s.publishes...)
	return
}

func TestBridge_DeliversAndBroadcasts(t *testing.T) {
	sink := newRecordingSink()
	bridge := New(sink, sink, Options{})

	bridge.EnqueueLike("post-1", "session-a", true, 11)
	bridge.Close()

	upserts, counts, publishes := sink.snapshot()
	if len(upserts) != 1 || upserts[0] != "post-1/session-a" {
		t.Errorf("unexpected upserts: %v", upserts)
	}
	if counts["post-1"] != 11 {
		t.Errorf("expected count 11, got %d", counts["post-1"])
	}
	if len(publishes) != 1 || publishes[0] != "post-1" {
		t.Errorf("expected a broadcast for post-1, got %v", publishes)
	}
	if len(bridge.DeadLetters()) != 0 {
		t.Errorf("expected empty dead-letter list, got %v", bridge.DeadLetters())
	}
}

func TestBridge_RetriesThenSucceeds(t *testing.T) {
	sink := newRecordingSink()
	sink.failNext = 2
	bridge := New(sink, nil, Options{MaxAttempts: 3, Backoff: time.Millisecond})

	bridge.EnqueueLike("post-1", "session-a", true, 5)
	bridge.Close()

	upserts, counts, _ := sink.snapshot()
	if len(upserts) != 1 {
		t.Errorf("expected eventual delivery, got %v", upserts)
	}
	if counts["post-1"] != 5 {
		t.Errorf("expected count 5, got %d", counts["post-1"])
	}
	if len(bridge.DeadLetters()) != 0 {
		t.Errorf("expected no dead letters after recovery, got %v", bridge.DeadLetters())
	}
}

func TestBridge_ExhaustedRetriesDeadLetter(t *testing.T) {
	sink := newRecordingSink()
	sink.failNext = 100
	bridge := New(sink, nil, Options{MaxAttempts: 2, Backoff: time.Millisecond})

	bridge.EnqueueLike("post-1", "session-a", true, 5)
	bridge.Close()

	dead := bridge.DeadLetters()
	if len(dead) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(dead))
	}
	if dead[0].PostID != "post-1" || dead[0].Count != 5 {
		t.Errorf("dead letter lost job fields: %+v", dead[0])
	}
}

func TestBridge_EnqueueAfterCloseDeadLetters(t *testing.T) {
	sink := newRecordingSink()
	bridge := New(sink, nil, Options{})
	bridge.Close()

	bridge.EnqueueLike("post-1", "session-a", true, 1)

	if len(bridge.DeadLetters()) != 1 {
		t.Errorf("expected job dead-lettered after close, got %v", bridge.DeadLetters())
	}
}

func TestBridge_EnqueueNeverBlocks(t *testing.T) {
	sink := newRecordingSink()
	// Stall deliveries by failing slowly so the tiny queue saturates.
	sink.failNext = 1000
	bridge := New(sink, nil, Options{QueueSize: 1, MaxAttempts: 3, Backoff: 50 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			bridge.EnqueueLike("post-1", "session-a", true, int64(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("EnqueueLike blocked")
	}
	bridge.Close()
}

func TestBridge_EnqueueRacingCloseNeverPanics(t *testing.T) {
	// Enqueues racing Close must land in the queue or the dead-letter
	// list; a send on the closed channel would panic the enqueuer.
	for i := 0; i < 200; i++ {
		sink := newRecordingSink()
		bridge := New(sink, nil, Options{QueueSize: 4})

		const jobs = 8
		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < jobs; j++ {
				bridge.EnqueueLike("post-1", "session-a", true, int64(j))
			}
		}()

		bridge.Close()
		<-done

		upserts, _, _ := sink.snapshot()
		if got := len(upserts) + len(bridge.DeadLetters()); got != jobs {
			t.Fatalf("iteration %d: expected %d jobs accounted for, got %d", i, jobs, got)
		}
	}
}

func TestBridge_RedundantDeliveryIsIdempotentAtSink(t *testing.T) {
	sink := newRecordingSink()
	bridge := New(sink, nil, Options{})

	// The same toggle result delivered twice lands on the same upsert key.
	bridge.EnqueueLike("post-1", "session-a", true, 7)
	bridge.EnqueueLike("post-1", "session-a", true, 7)
	bridge.Close()

	upserts, counts, _ := sink.snapshot()
	if len(upserts) != 2 {
		t.Fatalf("expected both deliveries to reach the sink, got %v", upserts)
	}
	for _, key := range upserts {
		if key != "post-1/session-a" {
			t.Errorf("redundant delivery must reuse the upsert key, got %s", key)
		}
	}
	if counts["post-1"] != 7 {
		t.Errorf("expected final count 7, got %d", counts["post-1"])
	}
}
