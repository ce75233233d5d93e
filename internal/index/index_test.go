package index

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/reader"
)

func testBuilder(t *testing.T, opts BuildOptions) *Builder {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Workers == 0 {
		opts.Workers = 2
	}
	return NewBuilder(reader.New(reader.Options{}, logger), nil, opts, logger)
}

func writeArchiveFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// touch pushes a file's mod time forward so a rebuild sees it as changed.
func touch(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
}

func TestBuild_Fresh(t *testing.T) {
	dir := t.TempDir()
	writeArchiveFile(t, dir, "one.md", "alpha beta gamma")
	writeArchiveFile(t, dir, "two.md", "alpha beta")
	writeArchiveFile(t, dir, "three.md", "delta")

	ix, err := testBuilder(t, BuildOptions{}).Build(context.Background(), dir, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(ix.Files) != 3 {
		t.Fatalf("file count = %d, want 3", len(ix.Files))
	}
	if ix.Metadata.FileCount != 3 || ix.Metadata.TokenCount != len(ix.Tokens) {
		t.Errorf("metadata = %+v", ix.Metadata)
	}
	if ix.Metadata.IndexedFolderPath == "" {
		t.Error("indexed_folder_path not set")
	}

	id, ok := ix.IDForPath("one.md")
	if !ok {
		t.Fatal("one.md not indexed")
	}
	for _, tok := range []string{"alpha", "beta", "gamma"} {
		if !contains(ix.Tokens[tok], id) {
			t.Errorf("token %q missing posting for one.md", tok)
		}
	}
	if contains(ix.Tokens["delta"], id) {
		t.Error("delta should not reference one.md")
	}

	detail := ix.FileDetails[id]
	if detail.DisplayName != "one" {
		t.Errorf("display name = %q, want one", detail.DisplayName)
	}
	if detail.Kind != "text" {
		t.Errorf("kind = %q, want text", detail.Kind)
	}
}

func TestBuild_IncrementalPreservesUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeArchiveFile(t, dir, "stable.md", "alpha beta gamma")
	writeArchiveFile(t, dir, "other.md", "epsilon zeta")
	mutable := writeArchiveFile(t, dir, "mutable.md", "alpha oldword")

	b := testBuilder(t, BuildOptions{})
	first, err := b.Build(context.Background(), dir, nil, nil)
	if err != nil {
		t.Fatalf("first Build: %v", err)
	}
	stableID, _ := first.IDForPath("stable.md")
	mutableID, _ := first.IDForPath("mutable.md")

	if err := os.WriteFile(mutable, []byte("alpha newword"), 0o644); err != nil {
		t.Fatal(err)
	}
	touch(t, mutable)

	second, err := b.Build(context.Background(), dir, nil, first)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}

	if id, _ := second.IDForPath("stable.md"); id != stableID {
		t.Errorf("stable.md id moved: %q -> %q", stableID, id)
	}
	if id, _ := second.IDForPath("mutable.md"); id != mutableID {
		t.Errorf("mutable.md id moved: %q -> %q", mutableID, id)
	}

	for _, tok := range []string{"alpha", "beta", "gamma"} {
		if contains(first.Tokens[tok], stableID) != contains(second.Tokens[tok], stableID) {
			t.Errorf("stable.md posting for %q changed across rebuild", tok)
		}
	}
	if contains(second.Tokens["oldword"], mutableID) {
		t.Error("purged token still references mutable.md")
	}
	if _, ok := second.Tokens["oldword"]; ok {
		t.Error("oldword posting should be gone entirely")
	}
	if !contains(second.Tokens["newword"], mutableID) {
		t.Error("fresh token missing for mutable.md")
	}
	if !contains(second.Tokens["alpha"], mutableID) || !contains(second.Tokens["alpha"], stableID) {
		t.Errorf("alpha postings = %v", second.Tokens["alpha"])
	}
}

func TestBuild_UnchangedFileIsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeArchiveFile(t, dir, "a.md", "alpha")

	b := testBuilder(t, BuildOptions{})
	first, err := b.Build(context.Background(), dir, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	id, _ := first.IDForPath("a.md")
	firstDetail := first.FileDetails[id]

	b.now = func() time.Time { return time.Now().Add(time.Hour) }
	second, err := b.Build(context.Background(), dir, nil, first)
	if err != nil {
		t.Fatal(err)
	}
	if got := second.FileDetails[id]; got.IndexedAt != firstDetail.IndexedAt {
		t.Errorf("indexed_at moved for unchanged file: %q -> %q", firstDetail.IndexedAt, got.IndexedAt)
	}
	if !reflect.DeepEqual(first.Tokens, second.Tokens) {
		t.Error("token sections differ after no-op rebuild")
	}
}

func TestBuild_DeletedFilePurged(t *testing.T) {
	dir := t.TempDir()
	writeArchiveFile(t, dir, "keep.md", "alpha shared")
	gone := writeArchiveFile(t, dir, "gone.md", "shared unique")

	b := testBuilder(t, BuildOptions{})
	first, err := b.Build(context.Background(), dir, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	goneID, _ := first.IDForPath("gone.md")
	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}

	second, err := b.Build(context.Background(), dir, nil, first)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := second.Files[goneID]; ok {
		t.Error("deleted file still listed")
	}
	if _, ok := second.Tokens["unique"]; ok {
		t.Error("posting for deleted file's token survived")
	}
	if contains(second.Tokens["shared"], goneID) {
		t.Error("shared token still references deleted file")
	}
	// A later new file must not recycle the retired id.
	writeArchiveFile(t, dir, "new.md", "fresh")
	third, err := b.Build(context.Background(), dir, nil, second)
	if err != nil {
		t.Fatal(err)
	}
	if id, _ := third.IDForPath("new.md"); id == goneID {
		t.Errorf("retired id %q was reused", goneID)
	}
}

func TestBuild_ChatBounds(t *testing.T) {
	dir := t.TempDir()
	chat := writeArchiveFile(t, dir, "chat.md",
		"[2024-01-02 10:00:00] hello\nmiddle\n[2024-01-03 22:00:00] bye\n")

	b := testBuilder(t, BuildOptions{})
	first, err := b.Build(context.Background(), dir, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	id, _ := first.IDForPath("chat.md")
	d := first.FileDetails[id]
	if d.ChatStartedAt != "2024-01-02 10:00:00" || d.ChatEndedAt != "2024-01-03 22:00:00" {
		t.Fatalf("bounds = %q / %q", d.ChatStartedAt, d.ChatEndedAt)
	}

	// Rewrite without any timestamps: started_at is preserved and
	// ended_at never moves backwards.
	if err := os.WriteFile(chat, []byte("plain text now\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	touch(t, chat)
	second, err := b.Build(context.Background(), dir, nil, first)
	if err != nil {
		t.Fatal(err)
	}
	d = second.FileDetails[id]
	if d.ChatStartedAt != "2024-01-02 10:00:00" {
		t.Errorf("chat_started_at lost: %q", d.ChatStartedAt)
	}
	if d.ChatEndedAt != "2024-01-03 22:00:00" {
		t.Errorf("chat_ended_at moved backwards: %q", d.ChatEndedAt)
	}
}

func TestBuild_JSONSourceHasNoChatBounds(t *testing.T) {
	dir := t.TempDir()
	writeArchiveFile(t, dir, "export.json", `{"mapping":{"n1":{"message":{
		"author":{"role":"user"},"create_time":1700000000,
		"content":{"content_type":"text","parts":["hello there"]}}}}}`)

	ix, err := testBuilder(t, BuildOptions{}).Build(context.Background(), dir, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	id, ok := ix.IDForPath("export.json")
	if !ok {
		t.Fatal("export.json not indexed")
	}
	d := ix.FileDetails[id]
	if d.Kind != "json" {
		t.Errorf("kind = %q", d.Kind)
	}
	if d.ChatStartedAt != "" || d.ChatEndedAt != "" {
		t.Errorf("json source carries chat bounds: %q / %q", d.ChatStartedAt, d.ChatEndedAt)
	}
}

func TestBuild_TagsAndCategory(t *testing.T) {
	dir := t.TempDir()
	writeArchiveFile(t, dir, "front.md", "---\ntags:\n  - ritual\n  - journal\ncategory: Archive\n---\nbody words\n")
	writeArchiveFile(t, dir, "plain.md", "no frontmatter here\n")

	opts := BuildOptions{
		Tags:       map[string][]string{"plain.md": {"imported"}},
		Categories: map[string]string{"plain.md": "Legacy"},
	}
	ix, err := testBuilder(t, opts).Build(context.Background(), dir, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	frontID, _ := ix.IDForPath("front.md")
	if d := ix.FileDetails[frontID]; !reflect.DeepEqual(d.Tags, []string{"ritual", "journal"}) || d.Category != "Archive" {
		t.Errorf("frontmatter detail = %+v", d)
	}
	plainID, _ := ix.IDForPath("plain.md")
	if d := ix.FileDetails[plainID]; !reflect.DeepEqual(d.Tags, []string{"imported"}) || d.Category != "Legacy" {
		t.Errorf("supplied-map detail = %+v", d)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeArchiveFile(t, dir, "a.md", "alpha beta")

	built, err := testBuilder(t, BuildOptions{}).Build(context.Background(), dir, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "archive-index.json")
	if err := Save(built, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if built.Metadata.IndexFileName != "archive-index.json" {
		t.Errorf("index_file_name = %q", built.Metadata.IndexFileName)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(built.Tokens, loaded.Tokens) {
		t.Error("tokens differ after round trip")
	}
	if !reflect.DeepEqual(built.Files, loaded.Files) {
		t.Error("files differ after round trip")
	}
	if !reflect.DeepEqual(built.FileDetails, loaded.FileDetails) {
		t.Error("file_details differ after round trip")
	}

	st := StatsFor(loaded, path)
	if st.FileCount != 1 || st.TokenCount != len(loaded.Tokens) || st.Bytes == 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestLoad_ShapeValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", "{nope"},
		{"missing metadata", `{"tokens":{},"files":{},"file_details":{}}`},
		{"missing tokens", `{"metadata":{},"files":{},"file_details":{}}`},
		{"missing files", `{"metadata":{},"tokens":{},"file_details":{}}`},
		{"missing file_details", `{"metadata":{},"tokens":{},"files":{}}`},
		{"wrong kind", `{"metadata":{},"tokens":[],"files":{},"file_details":{}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "index.json")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); !errors.Is(err, apperr.ErrIndexShape) {
				t.Errorf("err = %v, want ErrIndexShape", err)
			}
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
