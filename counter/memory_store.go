package counter

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for deployments that run without the
// external cache, and for tests. A single mutex serializes toggles, giving
// the same no-lost-updates guarantee the Redis script provides.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]int64
	sets   map[string]map[string]struct{}
}

// NewMemoryStore creates an empty in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counts: make(map[string]int64),
		sets:   make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Counts(_ context.Context, postIDs []string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int64, len(postIDs))
	for _, id := range postIDs {
		counts[id] = s.counts[id]
	}
	return counts, nil
}

func (s *MemoryStore) Liked(_ context.Context, postIDs []string, sessionID string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	liked := make(map[string]bool, len(postIDs))
	for _, id := range postIDs {
		_, ok := s.sets[id][sessionID]
		liked[id] = ok
	}
	return liked, nil
}

func (s *MemoryStore) Toggle(_ context.Context, postID, sessionID string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[postID]
	if !ok {
		set = make(map[string]struct{})
		s.sets[postID] = set
	}

	if _, member := set[sessionID]; member {
		delete(set, sessionID)
		s.counts[postID]--
		if s.counts[postID] < 0 {
			s.counts[postID] = 0
		}
		return Result{Liked: false, Count: s.counts[postID]}, nil
	}

	set[sessionID] = struct{}{}
	s.counts[postID]++
	return Result{Liked: true, Count: s.counts[postID]}, nil
}

// Seed primes a post's count without touching the liked set. Used to warm the
// store from the durable copy.
func (s *MemoryStore) Seed(postID string, count int64) {
	s.mu.Lock()
	s.counts[postID] = count
	s.mu.Unlock()
}
