package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/selimbzr/ravel/internal/chunker"
	"github.com/selimbzr/ravel/internal/session"
)

// newTestState persists a fresh session over the given content and returns
// its snapshot path.
func newTestState(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(src, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	store := session.NewStore(filepath.Join(dir, "state"))
	_, path, err := store.Create(src, content, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return path
}

func TestChunkFixedIncludesHintsByDefault(t *testing.T) {
	path := newTestState(t, strings.Repeat("some plain prose to split up. ", 20))

	err := cmdChunk(context.Background(), []string{"-state", path, "-strategy", "fixed", "-size", "100"})
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}

	manifest, err := chunker.ReadManifest(filepath.Join(session.Dir(path), "chunks"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if len(manifest.Chunks) == 0 {
		t.Fatal("expected chunks")
	}
	for _, c := range manifest.Chunks {
		if c.Hints == nil {
			t.Errorf("chunk %s: fixed chunking should carry hints by default", c.ID)
		}
		if c.Preview == "" {
			t.Errorf("chunk %s: missing preview", c.ID)
		}
	}
}

func TestSearchStoresHandle(t *testing.T) {
	content := "The heron waits at the riverbank. " + strings.Repeat("filler text here. ", 30) +
		"Gulls circle the harbor at dusk. " + strings.Repeat("more filler text. ", 30)
	path := newTestState(t, content)
	ctx := context.Background()

	if err := cmdChunk(ctx, []string{"-state", path, "-strategy", "fixed", "-size", "200"}); err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if err := cmdIndex(ctx, []string{"-state", path}); err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := cmdSearch(ctx, []string{"-state", path, "-query", "heron riverbank"}); err != nil {
		t.Fatalf("search: %v", err)
	}

	sess, err := session.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rec, ok := sess.Handles["$res1"]
	if !ok {
		t.Fatalf("search should store its hits as a handle, got handles: %v", sess.Handles)
	}
	if rec.Kind != "search" {
		t.Errorf("handle kind = %q, want %q", rec.Kind, "search")
	}
	if len(rec.Items) == 0 {
		t.Fatal("stored handle should carry the hits")
	}
	first, ok := rec.Items[0].(map[string]any)
	if !ok {
		t.Fatalf("hit item type = %T", rec.Items[0])
	}
	if first["chunk_id"] == nil || first["score"] == nil {
		t.Errorf("hit item missing chunk_id/score: %v", first)
	}
}

func TestSearchRawDoesNotStoreHandle(t *testing.T) {
	content := "The heron waits at the riverbank. " + strings.Repeat("filler text here. ", 30)
	path := newTestState(t, content)
	ctx := context.Background()

	if err := cmdChunk(ctx, []string{"-state", path, "-strategy", "fixed", "-size", "200"}); err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if err := cmdIndex(ctx, []string{"-state", path}); err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := cmdSearch(ctx, []string{"-state", path, "-query", "heron", "-raw"}); err != nil {
		t.Fatalf("search -raw: %v", err)
	}

	sess, err := session.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sess.Handles) != 0 {
		t.Errorf("raw search must not store a handle, got %v", sess.Handles)
	}
}
