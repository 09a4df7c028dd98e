package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreWriteReplacesAndReads(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	ctx := context.Background()

	key, err := store.Write(ctx, "./nested/history.json", []byte("[1]"))
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if key != "nested/history.json" {
		t.Fatalf("key = %q, want nested/history.json", key)
	}
	if _, err := store.Write(ctx, key, []byte("[1,2]")); err != nil {
		t.Fatalf("second Write returned error: %v", err)
	}
	data, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if string(data) != "[1,2]" {
		t.Fatalf("data = %q, want [1,2]", data)
	}

	entries, err := os.ReadDir(filepath.Join(store.BasePath(), "nested"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestFileStoreReadMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	if _, err := store.Read(context.Background(), "missing.json"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("Read error = %v, want ErrNotExist", err)
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "..", "../etc/passwd", "a/../../b"} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("sanitizeKey(%q) expected error", key)
		}
	}
}

func TestFileStoreHonorsCanceledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Write(ctx, "x.json", []byte("{}")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Write error = %v, want context.Canceled", err)
	}
}

func TestFileStoreRename(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Write(ctx, "history.json", []byte("{bad")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if err := store.Rename(ctx, "history.json", "history.json.corrupt-1"); err != nil {
		t.Fatalf("Rename returned error: %v", err)
	}
	if _, err := store.Read(ctx, "history.json"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("Read(old) error = %v, want ErrNotExist", err)
	}
	data, err := store.Read(ctx, "history.json.corrupt-1")
	if err != nil || string(data) != "{bad" {
		t.Fatalf("Read(new) = %q, %v", data, err)
	}
	if err := store.Rename(ctx, "missing.json", "x.json"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("Rename(missing) error = %v, want ErrNotExist", err)
	}
}
