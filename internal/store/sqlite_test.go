package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func putLocket(t *testing.T, s *SQLiteStore, letter string) string {
	t.Helper()
	id := s.NewID()
	_, err := s.Put(context.Background(), PutParams{
		ID:        id,
		ImageKey:  "lockets/" + id + "/image",
		ImageType: "image/png",
		Letter:    letter,
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	return id
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	l, err := s.Put(ctx, PutParams{
		ImageKey: "lockets/x/image", ImageType: "image/png",
		Letter: "Dear you", AudioKey: "lockets/x/audio", AudioType: "audio/webm",
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if l.ID == "" {
		t.Error("expected non-empty ID")
	}
	if l.ExpiresAt != nil {
		t.Error("expected no expiry without ttl")
	}

	got, err := s.Get(ctx, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Letter != "Dear you" {
		t.Errorf("expected 'Dear you', got %q", got.Letter)
	}
	if got.AudioKey != "lockets/x/audio" || got.AudioType != "audio/webm" {
		t.Errorf("audio not persisted: %+v", got)
	}
	// Access count incremented after read, verify with a second get
	got2, _ := s.Get(ctx, l.ID)
	if got2.AccessCount != 1 {
		t.Errorf("expected access_count 1 after second get, got %d", got2.AccessCount)
	}
	if got2.LastAccessedAt == nil {
		t.Error("expected last_accessed_at to be set")
	}
}

func TestPutKeepsGivenID(t *testing.T) {
	s := newTestStore(t)
	id := putLocket(t, s, "hello")

	got, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != id {
		t.Errorf("expected id %s, got %s", id, got.ID)
	}
	if got.AudioKey != "" {
		t.Errorf("expected no audio key, got %q", got.AudioKey)
	}
}

func TestPutValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Put(ctx, PutParams{Letter: "x"}); err == nil {
		t.Error("expected error without image")
	}
	if _, err := s.Put(ctx, PutParams{ImageKey: "k", ImageType: "image/png"}); err == nil {
		t.Error("expected error without letter")
	}
	if _, err := s.Put(ctx, PutParams{ImageKey: "k", ImageType: "image/png", Letter: "x", TTL: "soon"}); err == nil {
		t.Error("expected error for bad ttl")
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNewIDUnique(t *testing.T) {
	s := newTestStore(t)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := s.NewID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	putLocket(t, s, "alpha")
	putLocket(t, s, "beta")
	last := putLocket(t, s, "gamma")

	all, _ := s.List(ctx, ListParams{})
	if len(all) != 3 {
		t.Fatalf("expected 3, got %d", len(all))
	}
	if all[0].ID != last {
		t.Errorf("expected newest first, got %s", all[0].ID)
	}

	limited, _ := s.List(ctx, ListParams{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("expected 2, got %d", len(limited))
	}
}

func TestSoftDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := putLocket(t, s, "data")
	removed, err := s.Rm(ctx, RmParams{ID: id})
	if err != nil {
		t.Fatalf("rm: %v", err)
	}
	if removed.DeletedAt == nil {
		t.Error("expected deleted_at on removed row")
	}

	if _, err := s.Get(ctx, id); err == nil {
		t.Error("expected error after soft delete")
	}
	if _, err := s.Rm(ctx, RmParams{ID: id}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second rm, got %v", err)
	}

	var n int
	s.db.QueryRow(`SELECT COUNT(*) FROM lockets WHERE id = ?`, id).Scan(&n)
	if n != 1 {
		t.Errorf("soft delete should keep the row, found %d", n)
	}
}

func TestHardDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := putLocket(t, s, "data")
	removed, err := s.Rm(ctx, RmParams{ID: id, Hard: true})
	if err != nil {
		t.Fatalf("rm hard: %v", err)
	}
	if removed.ImageKey != "lockets/"+id+"/image" {
		t.Errorf("expected removed row to carry image key, got %q", removed.ImageKey)
	}

	var n int
	s.db.QueryRow(`SELECT COUNT(*) FROM lockets WHERE id = ?`, id).Scan(&n)
	if n != 0 {
		t.Errorf("expected row gone, found %d", n)
	}
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected db file to be created")
	}
}
