package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func testFS(t *testing.T) (*FS, string) {
	t.Helper()
	dir := t.TempDir()
	f, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return f, dir
}

func TestNewFS_MissingDir(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestList_PatternFilter(t *testing.T) {
	f, dir := testFS(t)
	for _, name := range []string{"a.md", "b.json", "c.txt", "d.bin"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "e.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	metas, err := f.List([]string{"*.md", "*.json"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(metas), metas)
	}

	all, err := f.List(nil)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("len = %d, want 5", len(all))
	}
}

func TestRead_TraversalRejected(t *testing.T) {
	f, _ := testFS(t)
	if _, err := f.Read("../outside.txt"); err == nil {
		t.Fatal("expected traversal rejection")
	}
	if _, err := f.Read("/etc/passwd"); err == nil {
		t.Fatal("expected absolute path rejection")
	}
}

func TestWriteAtomic_RoundTrip(t *testing.T) {
	f, dir := testFS(t)
	if err := f.WriteAtomic("nested/out.json", []byte(`[]`)); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "nested", "out.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `[]` {
		t.Errorf("content = %q", data)
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(filepath.Join(dir, "nested"))
	if len(entries) != 1 {
		t.Errorf("dir entries = %d, want 1", len(entries))
	}
}
