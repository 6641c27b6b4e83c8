package invalidate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/suplatzigram/go-engagement-cache/pagecache"
)

// mockPages records purged tags and optionally fails.
type mockPages struct {
	mu     sync.Mutex
	purged []string
	err    error
}

func (m *mockPages) Read(context.Context, pagecache.Key) (pagecache.Page, error) {
	return pagecache.Page{}, pagecache.ErrAbsent
}

func (m *mockPages) Write(context.Context, pagecache.Key, pagecache.Page, []string, time.Duration) error {
	return nil
}

func (m *mockPages) PurgeTag(_ context.Context, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.purged = append(m.purged, tag)
	return nil
}

// mockFrame records prefix deletes and optionally fails.
type mockFrame struct {
	mu       sync.Mutex
	prefixes []string
	err      error
}

func (m *mockFrame) GetOrFetch(context.Context, string, any) (any, error) { return nil, nil }
func (m *mockFrame) Delete(context.Context, string) error                 { return nil }
func (m *mockFrame) InvalidateKeys(context.Context, []string) error       { return nil }

func (m *mockFrame) DeleteByPrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.prefixes = append(m.prefixes, prefix)
	return nil
}

func TestCoordinator_OnLikeToggledPurgesAllSurfaces(t *testing.T) {
	pages := &mockPages{}
	frame := &mockFrame{}
	routes := NewRouteCache()
	routes.Rendered("/")
	routes.Rendered("/ranked")

	coord := NewCoordinator(pages, frame, routes, nil)
	report := coord.OnLikeToggled(context.Background())

	if !report.Ok() {
		t.Fatalf("expected clean report, got %v", report.Err())
	}
	if len(pages.purged) != 4 {
		t.Errorf("expected 4 tags purged, got %v", pages.purged)
	}
	want := map[string]bool{"posts": true, "home": true, "ranked": true, "profiles": true}
	for _, tag := range pages.purged {
		if !want[tag] {
			t.Errorf("unexpected tag purged: %s", tag)
		}
	}
	if len(frame.prefixes) != 4 {
		t.Errorf("expected 4 framework prefixes, got %v", frame.prefixes)
	}
	if !routes.IsStale("/") || !routes.IsStale("/ranked") {
		t.Error("expected feed routes marked stale")
	}
}

func TestCoordinator_PageLayerFailureDoesNotBlockFramework(t *testing.T) {
	pages := &mockPages{err: errors.New("cache unreachable")}
	frame := &mockFrame{}

	coord := NewCoordinator(pages, frame, NewRouteCache(), nil)
	report := coord.OnLikeToggled(context.Background())

	if report.Ok() {
		t.Fatal("expected failure report")
	}
	if !report.Partial() {
		t.Errorf("expected partial failure, got %+v", report)
	}
	if len(frame.prefixes) != 4 {
		t.Errorf("framework layer must still be purged, got %v", frame.prefixes)
	}
	if len(report.Failed) != 1 || report.Failed[0].Layer != "pagecache" {
		t.Errorf("expected pagecache layer failure, got %+v", report.Failed)
	}
	if report.Err() == nil {
		t.Error("expected non-nil summary error")
	}
}

func TestCoordinator_OnProfileUpdated(t *testing.T) {
	pages := &mockPages{}
	frame := &mockFrame{}
	routes := NewRouteCache()
	routes.Rendered("/profiles/ada")

	coord := NewCoordinator(pages, frame, routes, nil)
	report := coord.OnProfileUpdated(context.Background(), "ada")

	if !report.Ok() {
		t.Fatalf("expected clean report, got %v", report.Err())
	}
	if len(pages.purged) != 2 || pages.purged[0] != "profile:ada" || pages.purged[1] != "profiles" {
		t.Errorf("unexpected tags: %v", pages.purged)
	}
	if !routes.IsStale("/profiles/ada") {
		t.Error("expected profile route marked stale")
	}
}

func TestCoordinator_Idempotent(t *testing.T) {
	pages := &mockPages{}
	frame := &mockFrame{}
	coord := NewCoordinator(pages, frame, nil, nil)

	for i := 0; i < 3; i++ {
		if report := coord.OnLikeToggled(context.Background()); !report.Ok() {
			t.Fatalf("purge %d failed: %v", i, report.Err())
		}
	}
}

func TestRouteCache_RenderClearsStaleness(t *testing.T) {
	routes := NewRouteCache()

	routes.Rendered("/")
	routes.MarkStale("/")
	if !routes.IsStale("/") {
		t.Fatal("expected stale after mark")
	}

	routes.Rendered("/")
	if routes.IsStale("/") {
		t.Error("expected fresh after re-render")
	}
}

func TestRouteCache_UnknownPathNotStale(t *testing.T) {
	routes := NewRouteCache()
	if routes.IsStale("/never-seen") {
		t.Error("unknown path must not be stale")
	}
}

func TestRouteCache_PrefixStale(t *testing.T) {
	routes := NewRouteCache()
	routes.Rendered("/profiles/ada")
	routes.Rendered("/profiles/lin")
	routes.Rendered("/about")

	routes.MarkPrefixStale("/profiles/")

	if !routes.IsStale("/profiles/ada") || !routes.IsStale("/profiles/lin") {
		t.Error("expected all profile routes stale")
	}
	if routes.IsStale("/about") {
		t.Error("expected unrelated route fresh")
	}
}
