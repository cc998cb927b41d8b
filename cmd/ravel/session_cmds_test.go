package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/selimbzr/ravel/internal/session"
)

func TestLoadContextMissingSource(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.txt")

	_, err := loadContext(missing, 0)
	if err == nil {
		t.Fatal("expected error for missing source")
	}
	var initErr *session.InitializationError
	if !errors.As(err, &initErr) {
		t.Fatalf("error should be *session.InitializationError, got %T: %v", err, err)
	}
	if initErr.Path != missing {
		t.Errorf("error path = %q, want %q", initErr.Path, missing)
	}
	if !os.IsNotExist(initErr.Unwrap()) {
		t.Errorf("wrapped error should be not-exist, got %v", initErr.Unwrap())
	}
}

func TestLoadContextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	if err := os.WriteFile(path, []byte("# Notes\n\nbody\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	content, err := loadContext(path, 0)
	if err != nil {
		t.Fatalf("loadContext: %v", err)
	}
	if content != "# Notes\n\nbody\n" {
		t.Errorf("content = %q", content)
	}
}

func TestLoadContextDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("beta"), 0o644); err != nil {
		t.Fatal(err)
	}

	content, err := loadContext(dir, 0)
	if err != nil {
		t.Fatalf("loadContext: %v", err)
	}
	if !strings.Contains(content, "alpha") || !strings.Contains(content, "beta") {
		t.Errorf("directory content missing files: %q", content)
	}
	if !strings.Contains(content, "a.txt") {
		t.Errorf("directory content missing per-file banner: %q", content)
	}
}
