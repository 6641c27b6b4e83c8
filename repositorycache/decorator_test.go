package repositorycache

import (
	"context"
	"errors"
	"testing"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/suplatzigram/go-engagement-cache/cache"
)

type Profile struct {
	ID     string
	Handle string
}

type mockRepo struct {
	getCalls    int
	getByID     int
	listCalls   int
	countCalls  int
	profiles    []Profile
	createErr   error
	deleteCalls int
}

func (m *mockRepo) Get(ctx context.Context, criteria ...repository.SelectCriteria) (Profile, error) {
	m.getCalls++
	if len(m.profiles) == 0 {
		return Profile{}, errors.New("not found")
	}
	return m.profiles[0], nil
}

func (m *mockRepo) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (Profile, error) {
	m.getByID++
	for _, p := range m.profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return Profile{}, errors.New("not found")
}

func (m *mockRepo) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]Profile, int, error) {
	m.listCalls++
	return m.profiles, len(m.profiles), nil
}

func (m *mockRepo) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	m.countCalls++
	return len(m.profiles), nil
}

func (m *mockRepo) Create(ctx context.Context, record Profile, criteria ...repository.InsertCriteria) (Profile, error) {
	if m.createErr != nil {
		return Profile{}, m.createErr
	}
	m.profiles = append(m.profiles, record)
	return record, nil
}

func (m *mockRepo) Update(ctx context.Context, record Profile, criteria ...repository.UpdateCriteria) (Profile, error) {
	for i, p := range m.profiles {
		if p.ID == record.ID {
			m.profiles[i] = record
		}
	}
	return record, nil
}

func (m *mockRepo) Delete(ctx context.Context, record Profile) error {
	m.deleteCalls++
	return nil
}

func (m *mockRepo) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return nil
}

func (m *mockRepo) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (Profile, error) {
	m.getCalls++
	if len(m.profiles) == 0 {
		return Profile{}, errors.New("not found")
	}
	return m.profiles[0], nil
}

func (m *mockRepo) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]Profile, int, error) {
	m.listCalls++
	return m.profiles, len(m.profiles), nil
}

func newCached(t *testing.T, base *mockRepo, opts ...Option[Profile]) *CachedRepository[Profile] {
	t.Helper()
	service, err := cache.NewCacheService(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create cache service: %v", err)
	}
	return New[Profile](base, service, cache.NewDefaultKeySerializer(), opts...)
}

func TestEntityNamespace(t *testing.T) {
	cached := newCached(t, &mockRepo{})
	if cached.Entity() != "profile" {
		t.Errorf("expected entity namespace 'profile', got %q", cached.Entity())
	}
	if got := entityName[*Profile](); got != "profile" {
		t.Errorf("expected pointer type to share the namespace, got %q", got)
	}
}

func TestGetByIDCachesSecondRead(t *testing.T) {
	base := &mockRepo{profiles: []Profile{{ID: "p1", Handle: "ana"}}}
	cached := newCached(t, base)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := cached.GetByID(ctx, "p1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Handle != "ana" {
			t.Errorf("expected handle ana, got %q", got.Handle)
		}
	}
	if base.getByID != 1 {
		t.Errorf("expected 1 base call, got %d", base.getByID)
	}
}

func TestListCachesRecordsAndTotalTogether(t *testing.T) {
	base := &mockRepo{profiles: []Profile{{ID: "p1"}, {ID: "p2"}}}
	cached := newCached(t, base)
	ctx := context.Background()

	records, total, err := cached.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 || total != 2 {
		t.Fatalf("expected 2 records total 2, got %d/%d", len(records), total)
	}
	if _, _, err := cached.List(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.listCalls != 1 {
		t.Errorf("expected 1 base call, got %d", base.listCalls)
	}
}

func TestWriteInvalidatesEntityNamespace(t *testing.T) {
	base := &mockRepo{profiles: []Profile{{ID: "p1", Handle: "ana"}}}
	cached := newCached(t, base)
	ctx := context.Background()

	if _, err := cached.GetByID(ctx, "p1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cached.Update(ctx, Profile{ID: "p1", Handle: "ana.renamed"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := cached.GetByID(ctx, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Handle != "ana.renamed" {
		t.Errorf("expected refetched handle after invalidation, got %q", got.Handle)
	}
	if base.getByID != 2 {
		t.Errorf("expected refetch from base, got %d calls", base.getByID)
	}
}

func TestFailedWriteKeepsCache(t *testing.T) {
	base := &mockRepo{profiles: []Profile{{ID: "p1", Handle: "ana"}}, createErr: errors.New("db down")}
	cached := newCached(t, base)
	ctx := context.Background()

	if _, err := cached.GetByID(ctx, "p1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cached.Create(ctx, Profile{ID: "p2"}); err == nil {
		t.Fatal("expected create to fail")
	}
	if _, err := cached.GetByID(ctx, "p1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.getByID != 1 {
		t.Errorf("expected cached read to survive a failed write, got %d calls", base.getByID)
	}
}

func TestAfterWriteHookRuns(t *testing.T) {
	hookCalls := 0
	base := &mockRepo{}
	cached := newCached(t, base, WithAfterWrite[Profile](func(ctx context.Context) { hookCalls++ }))

	if _, err := cached.Create(context.Background(), Profile{ID: "p1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hookCalls != 1 {
		t.Errorf("expected after-write hook once, got %d", hookCalls)
	}
}

func TestTransactionReadsBypassCache(t *testing.T) {
	base := &mockRepo{profiles: []Profile{{ID: "p1"}}}
	cached := newCached(t, base)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cached.GetTx(ctx, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if base.getCalls != 2 {
		t.Errorf("expected every tx read to hit the base, got %d calls", base.getCalls)
	}
}

func TestWithCacheTagsPurgedOnWrite(t *testing.T) {
	base := &mockRepo{profiles: []Profile{{ID: "p1", Handle: "ana"}}}
	service, err := cache.NewCacheService(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create cache service: %v", err)
	}
	keys := cache.NewDefaultKeySerializer()
	cached := New[Profile](base, service, keys)
	ctx := context.Background()

	// Seed an entry in a foreign namespace that renders this profile.
	foreignKey := "feed_snapshot" + cache.KeySeparator + "p1"
	fetches := 0
	fetch := func(ctx context.Context) (string, error) {
		fetches++
		return "rendered", nil
	}
	if _, err := cache.GetOrFetch(ctx, service, foreignKey, fetch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tagged := WithCacheTags(ctx, "feed_snapshot")
	if _, err := cached.Update(tagged, Profile{ID: "p1", Handle: "ana2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := cache.GetOrFetch(ctx, service, foreignKey, fetch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetches != 2 {
		t.Errorf("expected tagged prefix to be purged on write, got %d fetches", fetches)
	}
}

func TestToSnake(t *testing.T) {
	cases := map[string]string{
		"Profile":      "profile",
		"PostSummary":  "post_summary",
		"HTTPServer":   "http_server",
		"likeCount":    "like_count",
		"main.Profile": "main_profile",
		"":             "",
	}
	for in, want := range cases {
		if got := toSnake(in); got != want {
			t.Errorf("toSnake(%q) = %q, want %q", in, got, want)
		}
	}
}
