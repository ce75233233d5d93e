// Package pipeline implements the bounded-concurrency extraction scan:
// enumerate, gate, fan out to workers, spill entries, flush atomically.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/govern"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/reader"
	"github.com/starford/raido/internal/recognize"
	"github.com/starford/raido/internal/storage"
)

// ProgressFunc receives scan progress. current counts processed files.
type ProgressFunc func(message string, current, total int)

// ErrorFunc receives recovered per-file failures.
type ErrorFunc func(path, kind, detail string)

// Options controls one extraction scan.
type Options struct {
	Workers             int
	CPUPercent          int
	MaxFileSizeMB       int
	MaxTotalSizeGB      int
	RAMBufferMB         int
	Patterns            []string
	ConversationEntries bool // emit synthetic entries for SMS messages
}

// Extractor coordinates the scan. Progress and OnError, when set, are
// invoked from the coordinator goroutine only.
type Extractor struct {
	rec    *recognize.Recognizer
	rd     *reader.Reader
	gov    *govern.Governor
	opts   Options
	logger *slog.Logger

	Progress ProgressFunc
	OnError  ErrorFunc
}

// NewExtractor creates an Extractor. A nil logger falls back to slog.Default.
func NewExtractor(rec *recognize.Recognizer, rd *reader.Reader, gov *govern.Governor, opts Options, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{rec: rec, rd: rd, gov: gov, opts: opts, logger: logger}
}

type job struct {
	id   int
	path string // relative to root
	data []byte
}

type result struct {
	id      int
	path    string
	entries []models.Entry
	errKind string
	err     error
}

// ExtractFolder scans root for recognizable entries and writes them as one
// JSON array at outputPath, atomically. Per-file failures are recovered and
// reported in the returned Report; only output-write failures and a folder
// exceeding the total-size gate are returned as errors.
func (x *Extractor) ExtractFolder(ctx context.Context, root, outputPath string) (*models.Report, error) {
	store, err := storage.NewFS(root)
	if err != nil {
		return nil, err
	}
	metas, err := store.List(x.opts.Patterns)
	if err != nil {
		return nil, err
	}

	report := &models.Report{
		Scanned:      len(metas),
		CountsByType: make(map[models.EntryType]int),
		OutputPath:   outputPath,
	}

	var total int64
	for _, m := range metas {
		total += m.Size
	}
	if gate := int64(x.opts.MaxTotalSizeGB) << 30; gate > 0 && total > gate {
		return report, fmt.Errorf("pipeline: folder is %d bytes: %w", total, apperr.ErrFolderTooLarge)
	}

	workers := govern.WorkerCount(x.opts.Workers, x.opts.CPUPercent)
	jobs := make(chan job, workers+1)
	results := make(chan result, workers+1)

	// The coordinator runs outside the group, so it needs its own handle to
	// stop the producer and workers when the spill buffer fails.
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(scanCtx)

	// Producer: read each file fully and dispatch. The jobs channel bounds
	// in-flight files at workers+1.
	sizeGate := int64(x.opts.MaxFileSizeMB) << 20
	var skipped []models.FileError
	g.Go(func() error {
		defer close(jobs)
		for i, m := range metas {
			if err := gctx.Err(); err != nil {
				return err
			}
			if x.gov != nil {
				if err := x.gov.CheckPoint(gctx); err != nil {
					return err
				}
			}
			if sizeGate > 0 && m.Size > sizeGate {
				skipped = append(skipped, models.FileError{
					Path: m.Path, Kind: "FileTooLarge",
					Detail: fmt.Sprintf("%d bytes", m.Size),
				})
				continue
			}
			data, readErr := store.Read(m.Path)
			if readErr != nil {
				skipped = append(skipped, models.FileError{
					Path: m.Path, Kind: "InputUnreadable", Detail: readErr.Error(),
				})
				continue
			}
			select {
			case jobs <- job{id: i, path: m.Path, data: data}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// Workers: parse and recognize one file at a time.
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for j := range jobs {
				res := x.processFile(j)
				j.data = nil // release the file bytes
				select {
				case results <- res:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Coordinator: stream entries into the spill buffer in completion order.
	spill := NewSpillBuffer(int64(x.opts.RAMBufferMB)<<20, filepath.Dir(outputPath))
	defer spill.Close()

	done := 0
	for res := range results {
		done++
		if res.err != nil {
			report.Failed++
			report.Errors = append(report.Errors, models.FileError{
				Path: res.path, Kind: res.errKind, Detail: res.err.Error(),
			})
			x.reportError(res.path, res.errKind, res.err.Error())
		} else {
			report.Succeeded++
		}
		for _, e := range res.entries {
			line, mErr := json.Marshal(e)
			if mErr != nil {
				continue
			}
			if sErr := spill.Append(line); sErr != nil {
				// Unblock the producer and workers, then drain until the
				// closer shuts the results channel.
				cancel()
				for range results {
				}
				_ = g.Wait()
				return report, fmt.Errorf("pipeline: %s: %w", sErr, apperr.ErrOutputWrite)
			}
			report.CountsByType[e.Type]++
			report.EntryCount++
		}
		if x.Progress != nil {
			x.Progress(res.path, done, len(metas))
		}
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	report.Skipped = len(skipped)
	for _, fe := range skipped {
		report.Errors = append(report.Errors, fe)
		x.reportError(fe.Path, fe.Kind, fe.Detail)
	}

	// Skipped files never reach the results channel, so the per-file events
	// alone may stop short of the total. Close the bar explicitly.
	if x.Progress != nil {
		x.Progress("scan complete", len(metas), len(metas))
	}

	if err := x.flush(spill, outputPath); err != nil {
		return report, err
	}

	x.logger.Info("pipeline: scan complete",
		slog.Int("scanned", report.Scanned),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
		slog.Int("entries", report.EntryCount),
		slog.String("output", outputPath))
	return report, nil
}

// flush streams the buffered entries as one JSON array into a sibling temp
// file and renames it over outputPath, so a failed write never leaves a
// partial artifact.
func (x *Extractor) flush(spill *SpillBuffer, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("pipeline: mkdir output dir: %w", apperr.ErrOutputWrite)
	}
	tmp, err := os.CreateTemp(dir, ".raido-out-*")
	if err != nil {
		return fmt.Errorf("pipeline: create output temp: %w", apperr.ErrOutputWrite)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := spill.WriteJSONArray(tmp); err != nil {
		return fmt.Errorf("pipeline: render output: %w", apperr.ErrOutputWrite)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("pipeline: fsync output: %w", apperr.ErrOutputWrite)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("pipeline: close output: %w", apperr.ErrOutputWrite)
	}
	if err := os.Rename(tmpName, outputPath); err != nil {
		return fmt.Errorf("pipeline: rename output: %w", apperr.ErrOutputWrite)
	}
	success = true
	return nil
}

// processFile parses one file synchronously. A parse failure yields an
// Error-typed trace entry instead of aborting the scan.
func (x *Extractor) processFile(j job) result {
	blob, err := x.rd.ReadCanonical(j.path, j.data)
	if err != nil {
		return result{
			id:   j.id,
			path: j.path,
			entries: []models.Entry{{
				Source:   j.path,
				Type:     models.TypeError,
				Title:    "unparseable file",
				Text:     err.Error(),
				Category: "Error",
			}},
			errKind: "InputUnparseable",
			err:     err,
		}
	}

	entries := x.rec.Recognize(j.path, blob.Text)
	if x.opts.ConversationEntries && blob.Kind == "sms" {
		entries = append(entries, x.rec.RecognizeMessages(j.path, blob.Messages)...)
	}
	return result{id: j.id, path: j.path, entries: entries}
}

func (x *Extractor) reportError(path, kind, detail string) {
	x.logger.Warn("pipeline: file error",
		slog.String("path", path),
		slog.String("kind", kind),
		slog.String("detail", detail))
	if x.OnError != nil {
		x.OnError(path, kind, detail)
	}
}
