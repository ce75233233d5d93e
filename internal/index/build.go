package index

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/raido/internal/govern"
	"github.com/starford/raido/internal/reader"
	"github.com/starford/raido/internal/storage"
	"github.com/starford/raido/internal/textutil"
)

// BuildOptions tunes one build run. Tags and Categories override frontmatter
// per relative path when supplied.
type BuildOptions struct {
	Workers       int
	CPUPercent    int
	MaxFileSizeMB int
	Tags          map[string][]string
	Categories    map[string]string
}

// Builder performs incremental index builds over an archive folder.
type Builder struct {
	rd     *reader.Reader
	gov    *govern.Governor
	opts   BuildOptions
	logger *slog.Logger
	now    func() time.Time
}

func NewBuilder(rd *reader.Reader, gov *govern.Governor, opts BuildOptions, logger *slog.Logger) *Builder {
	return &Builder{rd: rd, gov: gov, opts: opts, logger: logger, now: time.Now}
}

// ingest is one file's contribution, applied to the shared maps under lock.
type ingest struct {
	id     string
	tokens map[string]struct{}
	detail FileDetail
}

// Build produces a fresh index for root, reusing prev where files are
// unchanged. A file keeps its id for the lifetime of the index; ids of
// deleted files are retired, never reused for a different path.
func (b *Builder) Build(ctx context.Context, root string, patterns []string, prev *Index) (*Index, error) {
	store, err := storage.NewFS(root)
	if err != nil {
		return nil, err
	}
	metas, err := store.List(patterns)
	if err != nil {
		return nil, err
	}

	if prev == nil {
		prev = New()
	}

	// Mutable working state seeded from prev.
	postings := make(map[string]map[string]struct{}, len(prev.Tokens))
	for tok, ids := range prev.Tokens {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		postings[tok] = set
	}
	files := make(map[string]string, len(prev.Files))
	details := make(map[string]FileDetail, len(prev.FileDetails))
	pathToID := make(map[string]string, len(prev.Files))
	for id, rel := range prev.Files {
		files[id] = rel
		pathToID[rel] = id
	}
	for id, d := range prev.FileDetails {
		details[id] = d
	}

	onDisk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		onDisk[m.Path] = struct{}{}
	}
	for id, rel := range files {
		if _, ok := onDisk[rel]; !ok {
			purge(postings, id)
			delete(files, id)
			delete(details, id)
			delete(pathToID, rel)
		}
	}

	nextID := prev.NextID()
	nowStamp := b.now().UTC().Format(TimeLayout)
	sizeGate := int64(b.opts.MaxFileSizeMB) << 20

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(govern.WorkerCount(b.opts.Workers, b.opts.CPUPercent))

	reused, rebuilt := 0, 0
	for _, m := range metas {
		if err := gctx.Err(); err != nil {
			break
		}
		if b.gov != nil {
			if err := b.gov.CheckPoint(gctx); err != nil {
				return nil, err
			}
		}
		if sizeGate > 0 && m.Size > sizeGate {
			b.logger.Warn("index: file too large, skipped",
				slog.String("path", m.Path), slog.Int64("size", m.Size))
			continue
		}
		modStamp := m.ModTime.UTC().Format(TimeLayout)

		// Workers mutate postings and details concurrently, so the
		// dispatch loop takes the same lock for its own reads and the
		// pre-ingestion purge.
		mu.Lock()
		id, known := pathToID[m.Path]
		if known && details[id].FileModTime == modStamp {
			mu.Unlock()
			reused++
			continue
		}
		if !known {
			id = strconv.Itoa(nextID)
			nextID++
			files[id] = m.Path
			pathToID[m.Path] = id
		} else {
			purge(postings, id)
		}
		mu.Unlock()
		rebuilt++

		rel, fileID, stamp := m.Path, id, modStamp
		g.Go(func() error {
			in, ingErr := b.ingestFile(store, rel, fileID, stamp, nowStamp)
			if ingErr != nil {
				b.logger.Warn("index: file skipped",
					slog.String("path", rel), slog.String("error", ingErr.Error()))
				// An unreadable file must not linger as a bare id.
				mu.Lock()
				delete(files, fileID)
				delete(details, fileID)
				delete(pathToID, rel)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for tok := range in.tokens {
				set := postings[tok]
				if set == nil {
					set = make(map[string]struct{})
					postings[tok] = set
				}
				set[in.id] = struct{}{}
			}
			if prevDetail, ok := prev.FileDetails[in.id]; ok {
				mergeChatBounds(&in.detail, prevDetail)
			}
			details[in.id] = in.detail
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ix := New()
	ix.Files = files
	ix.FileDetails = details
	for tok, set := range postings {
		if len(set) == 0 {
			continue
		}
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sortPostings(ids)
		ix.Tokens[tok] = ids
	}
	ix.Metadata = Metadata{
		CreatedAt:         nowStamp,
		IndexedFolderPath: store.Root(),
		IndexFileName:     prev.Metadata.IndexFileName,
		FileCount:         len(ix.Files),
		TokenCount:        len(ix.Tokens),
	}

	b.logger.Info("index: build complete",
		slog.String("root", store.Root()),
		slog.Int("files", ix.Metadata.FileCount),
		slog.Int("tokens", ix.Metadata.TokenCount),
		slog.Int("reused", reused),
		slog.Int("rebuilt", rebuilt))
	return ix, nil
}

// ingestFile tokenizes one file and assembles its detail record.
func (b *Builder) ingestFile(store storage.Provider, rel, id, modStamp, nowStamp string) (*ingest, error) {
	data, err := store.Read(rel)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	blob, err := b.rd.ReadCanonical(rel, data)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	detail := FileDetail{
		DisplayName: displayName(rel),
		FileModTime: modStamp,
		IndexedAt:   nowStamp,
		Kind:        blob.Kind,
	}
	// JSON exports carry per-message times already; chat bounds are only
	// derived for the flat text shapes.
	if blob.Kind != "json" {
		detail.ChatStartedAt, detail.ChatEndedAt = textutil.ChatTimestamps(blob.Text)
	}

	fm := parseFrontmatter(data)
	detail.Tags = fm.Tags
	detail.Category = fm.Category
	if tags, ok := b.opts.Tags[rel]; ok {
		detail.Tags = tags
	}
	if cat, ok := b.opts.Categories[rel]; ok {
		detail.Category = cat
	}

	return &ingest{
		id:     id,
		tokens: textutil.TokenSet(blob.Text, true),
		detail: detail,
	}, nil
}

// mergeChatBounds keeps the previous chat_started_at when the fresh scan has
// none, and never lets chat_ended_at move backwards.
func mergeChatBounds(fresh *FileDetail, prev FileDetail) {
	if fresh.ChatStartedAt == "" {
		fresh.ChatStartedAt = prev.ChatStartedAt
	}
	if prev.ChatEndedAt > fresh.ChatEndedAt {
		fresh.ChatEndedAt = prev.ChatEndedAt
	}
}

// purge removes every posting that references id.
func purge(postings map[string]map[string]struct{}, id string) {
	for tok, set := range postings {
		if _, ok := set[id]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(postings, tok)
			}
		}
	}
}

// displayName is the file name without its extension.
func displayName(rel string) string {
	base := rel
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}
