package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "creds")
	s := NewFileStore(dir)
	ctx := context.Background()

	blob, err := s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if blob != nil {
		t.Fatalf("expected nil blob before save")
	}

	if err := s.Save(ctx, "s1", []byte("v1")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, "s1", []byte("v2")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "s1.creds"))
	if err != nil {
		t.Fatalf("expected file written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600, got %o", info.Mode().Perm())
	}

	blob, err = NewFileStore(dir).Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(blob) != "v2" {
		t.Fatalf("expected v2, got %q", blob)
	}

	if err := s.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "s1"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	blob, _ = s.Load(ctx, "s1")
	if blob != nil {
		t.Fatalf("expected nil blob after delete")
	}
}

func TestFileStore_RejectsPathIDs(t *testing.T) {
	s := NewFileStore(t.TempDir())
	if err := s.Save(context.Background(), "../escape", []byte("x")); err != ErrInvalidSessionID {
		t.Fatalf("expected ErrInvalidSessionID, got %v", err)
	}
}

func TestMemoryStore_CopiesBlobs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	in := []byte("abc")
	if err := s.Save(ctx, "s1", in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	in[0] = 'z'
	out, _ := s.Load(ctx, "s1")
	if string(out) != "abc" {
		t.Fatalf("expected stored copy, got %q", out)
	}
}
