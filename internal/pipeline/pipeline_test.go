package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/reader"
	"github.com/starford/raido/internal/recognize"
)

func testExtractor(t *testing.T, opts Options) *Extractor {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := recognize.NewDefault(true, logger)
	rd := reader.New(reader.Options{RoleHeaders: true}, logger)
	return NewExtractor(rec, rd, nil, opts, logger)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractFolder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "journal.md",
		"AmandaMap Threshold 3: the line held\n\nWe spoke about healing and growth today.\n")
	writeFile(t, dir, "notes.txt",
		"Phoenix Codex: field notes\n\nRitual prep and mindfulness, nothing else.\n")
	writeFile(t, dir, "broken.json", "{not valid json")

	out := filepath.Join(t.TempDir(), "entries.json")
	x := testExtractor(t, Options{Workers: 2, RAMBufferMB: 64})
	report, err := x.ExtractFolder(context.Background(), dir, out)
	if err != nil {
		t.Fatalf("ExtractFolder: %v", err)
	}

	if report.Scanned != 3 {
		t.Errorf("Scanned = %d, want 3", report.Scanned)
	}
	if report.Succeeded != 2 {
		t.Errorf("Succeeded = %d, want 2", report.Succeeded)
	}
	if report.Failed != 1 {
		t.Errorf("Failed = %d, want 1", report.Failed)
	}
	if len(report.Errors) != 1 || report.Errors[0].Kind != "InputUnparseable" {
		t.Errorf("Errors = %+v", report.Errors)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	var entries []models.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("output is not a JSON array of entries: %v", err)
	}
	if len(entries) != report.EntryCount {
		t.Errorf("output holds %d entries, report says %d", len(entries), report.EntryCount)
	}

	byType := make(map[models.EntryType]int)
	var errorEntry *models.Entry
	for i := range entries {
		byType[entries[i].Type]++
		if entries[i].Type == models.TypeError {
			errorEntry = &entries[i]
		}
	}
	if byType[models.TypeThreshold] != 1 {
		t.Errorf("thresholds = %d, want 1", byType[models.TypeThreshold])
	}
	if byType[models.TypePhoenixCodex] != 1 {
		t.Errorf("phoenix codex = %d, want 1", byType[models.TypePhoenixCodex])
	}
	if errorEntry == nil {
		t.Fatal("no Error-typed entry for the unparseable file")
	}
	if errorEntry.Category != "Error" || !strings.HasSuffix(errorEntry.Source, "broken.json") {
		t.Errorf("error entry = %+v", *errorEntry)
	}
	for typ, n := range byType {
		if report.CountsByType[typ] != n {
			t.Errorf("CountsByType[%s] = %d, output has %d", typ, report.CountsByType[typ], n)
		}
	}
}

func TestExtractFolder_SkipsOversizeFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "small.md", "Threshold 1: kept\n\nbody here\n")
	big := strings.Repeat("x", 1<<20+1)
	writeFile(t, dir, "big.md", big)

	out := filepath.Join(t.TempDir(), "entries.json")
	x := testExtractor(t, Options{Workers: 1, MaxFileSizeMB: 1, RAMBufferMB: 64})
	report, err := x.ExtractFolder(context.Background(), dir, out)
	if err != nil {
		t.Fatalf("ExtractFolder: %v", err)
	}
	if report.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", report.Skipped)
	}
	var found bool
	for _, fe := range report.Errors {
		if fe.Kind == "FileTooLarge" && strings.HasSuffix(fe.Path, "big.md") {
			found = true
		}
	}
	if !found {
		t.Errorf("no FileTooLarge record in %+v", report.Errors)
	}
	if report.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", report.Succeeded)
	}
}

func TestExtractFolder_PatternFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.md", "Threshold 4: kept\n\nbody\n")
	writeFile(t, dir, "skip.log", "Threshold 5: ignored\n\nbody\n")

	out := filepath.Join(t.TempDir(), "entries.json")
	x := testExtractor(t, Options{Workers: 1, RAMBufferMB: 64, Patterns: []string{"*.md"}})
	report, err := x.ExtractFolder(context.Background(), dir, out)
	if err != nil {
		t.Fatalf("ExtractFolder: %v", err)
	}
	if report.Scanned != 1 || report.EntryCount != 1 {
		t.Errorf("scanned %d entries %d, want 1 and 1", report.Scanned, report.EntryCount)
	}
}

func TestExtractFolder_Cancellation(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 20; i++ {
		writeFile(t, dir, "f"+string(rune('a'+i))+".md", "Threshold 1: x\n\nbody\n")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	x := testExtractor(t, Options{Workers: 2, RAMBufferMB: 64})
	_, err := x.ExtractFolder(ctx, dir, filepath.Join(t.TempDir(), "o.json"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestExtractFolder_OutputIsAtomic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "Threshold 9: held\n\nbody\n")

	outDir := t.TempDir()
	out := filepath.Join(outDir, "entries.json")
	x := testExtractor(t, Options{Workers: 1, RAMBufferMB: 64})
	if _, err := x.ExtractFolder(context.Background(), dir, out); err != nil {
		t.Fatalf("ExtractFolder: %v", err)
	}

	names, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, de := range names {
		if de.Name() != "entries.json" {
			t.Errorf("leftover file %q in output dir", de.Name())
		}
	}
}

func TestExtractFolder_MissingFolder(t *testing.T) {
	x := testExtractor(t, Options{Workers: 1})
	_, err := x.ExtractFolder(context.Background(), filepath.Join(t.TempDir(), "nope"), "o.json")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestExtractFolder_OutputWriteFailureStopsWorkers(t *testing.T) {
	dir := t.TempDir()
	body := strings.Repeat("steady ground and healing words ", 8<<10)
	for i := range 8 {
		content := fmt.Sprintf("AmandaMap Threshold %d: marker %d\n\n%s\n", i+1, i+1, body)
		writeFile(t, dir, fmt.Sprintf("entry%d.md", i), content)
	}

	x := testExtractor(t, Options{Workers: 2, RAMBufferMB: 1})
	before := runtime.NumGoroutine()

	// The overflow file lands next to the output, so a missing output dir
	// fails the first append past the in-memory budget.
	out := filepath.Join(t.TempDir(), "missing", "entries.json")
	_, err := x.ExtractFolder(context.Background(), dir, out)
	if !errors.Is(err, apperr.ErrOutputWrite) {
		t.Fatalf("err = %v, want ErrOutputWrite", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= before+1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("goroutines did not settle: %d before, %d after", before, runtime.NumGoroutine())
}

func TestExtractFolder_ProgressReachesTotalWithSkips(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.md",
		"AmandaMap Threshold 1: the line held\n\nWe spoke about healing.\n")
	writeFile(t, dir, "huge.md", strings.Repeat("x", 1<<20+1))

	x := testExtractor(t, Options{Workers: 1, RAMBufferMB: 16, MaxFileSizeMB: 1})
	var lastCur, lastTotal int
	x.Progress = func(message string, current, total int) {
		lastCur, lastTotal = current, total
	}

	out := filepath.Join(t.TempDir(), "entries.json")
	if _, err := x.ExtractFolder(context.Background(), dir, out); err != nil {
		t.Fatal(err)
	}
	if lastTotal == 0 || lastCur != lastTotal {
		t.Errorf("final progress = %d/%d, want a completed bar", lastCur, lastTotal)
	}
}
