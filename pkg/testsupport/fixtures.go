// Package testsupport holds shared helpers for engagement tests: fixture and
// golden-file loading plus seeded in-memory databases and sample feed pages.
package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"github.com/suplatzigram/go-engagement-cache/pagecache"
	"github.com/suplatzigram/go-engagement-cache/store"
)

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
func LoadFixtureJSON(t *testing.T, path string, dest any) {
	t.Helper()

	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// CompareWithGolden compares actual data with expected data from a golden file.
// If the golden file doesn't exist, it creates one with the actual data.
func CompareWithGolden(t *testing.T, path string, actual []byte) {
	t.Helper()

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.Logf("Golden file %s does not exist, creating it", path)
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				t.Fatalf("failed to create directory for %s: %v", path, err)
			}
			if err := os.WriteFile(path, actual, 0o644); err != nil {
				t.Fatalf("failed to write golden file %s: %v", path, err)
			}
			return
		}
		t.Fatalf("failed to read golden file %s: %v", path, err)
	}

	if string(actual) != string(expected) {
		t.Errorf("output mismatch for %s:\nExpected:\n%s\nActual:\n%s", path, expected, actual)
	}
}

// FixturePath constructs a path to a fixture file relative to testdata.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// GoldenPath constructs a path to a golden file relative to testdata.
func GoldenPath(filename string) string {
	return filepath.Join("testdata", "golden", filename)
}

// OpenTestDB opens an in-memory SQLite database private to the calling test,
// with the engagement schema created. The database is torn down with the
// test.
func OpenTestDB(t *testing.T) *bun.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := store.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := store.CreateSchema(context.Background(), db); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SeedPosts inserts n posts, newest first by ID order, and returns them.
func SeedPosts(t *testing.T, db *bun.DB, n int) []store.Post {
	t.Helper()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	posts := make([]store.Post, n)
	for i := range posts {
		posts[i] = store.Post{
			ID:           fmt.Sprintf("post-%03d", i),
			AuthorID:     "author-1",
			AuthorHandle: "ana",
			ImageRef:     fmt.Sprintf("img-%03d", i),
			LikeCount:    int64(i),
			CreatedAt:    base.Add(-time.Duration(i) * time.Minute),
		}
	}
	source := store.NewPosts(db)
	for i := range posts {
		if err := source.Create(context.Background(), &posts[i]); err != nil {
			t.Fatalf("failed to seed post %d: %v", i, err)
		}
	}
	return posts
}

// SamplePage builds a feed page with n posts for cache round-trip tests.
func SamplePage(n int) pagecache.Page {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	page := pagecache.Page{HasMore: true}
	for i := 0; i < n; i++ {
		page.Posts = append(page.Posts, pagecache.PostSummary{
			ID:        fmt.Sprintf("post-%03d", i),
			ImageRef:  fmt.Sprintf("img-%03d", i),
			Caption:   "caption",
			LikeCount: int64(i),
			Author:    pagecache.AuthorSummary{ID: "author-1", Handle: "ana"},
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
		})
	}
	return page
}
