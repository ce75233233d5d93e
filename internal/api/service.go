package api

import (
	"context"
	"log/slog"
	"sync"

	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/pipeline"
	"github.com/starford/raido/internal/search"
)

// Service coordinates extraction, index builds, and search for the API
// layer. Builds are serialized; searches run concurrently against the
// loaded index.
type Service struct {
	extractor *pipeline.Extractor
	builder   *index.Builder
	searcher  *search.Service
	indexPath string
	logger    *slog.Logger

	buildMu sync.Mutex
}

// NewService creates a new API service. indexPath is where built indexes
// are persisted and loaded from.
func NewService(x *pipeline.Extractor, b *index.Builder, s *search.Service, indexPath string, logger *slog.Logger) *Service {
	return &Service{
		extractor: x,
		builder:   b,
		searcher:  s,
		indexPath: indexPath,
		logger:    logger,
	}
}

// OnProgress installs a callback that receives per-file extraction
// progress. Must be set before any extraction starts.
func (s *Service) OnProgress(fn pipeline.ProgressFunc) {
	s.extractor.Progress = fn
}

// Search runs one query against the loaded index.
func (s *Service) Search(q search.Query) (*search.Response, error) {
	return s.searcher.Search(q)
}

// SearchState reports the search service lifecycle state.
func (s *Service) SearchState() search.State {
	return s.searcher.State()
}

// LoadIndex loads the persisted index from disk into the search service.
func (s *Service) LoadIndex() error {
	return s.searcher.Load(s.indexPath)
}

// UnloadIndex drops the loaded index.
func (s *Service) UnloadIndex() {
	s.searcher.Unload()
}

// Extract scans folder and writes the entry dataset to outputPath.
func (s *Service) Extract(ctx context.Context, folder, outputPath string) (*models.Report, error) {
	return s.extractor.ExtractFolder(ctx, folder, outputPath)
}

// BuildIndex rebuilds the index over folder incrementally, persists it, and
// installs it into the search service.
func (s *Service) BuildIndex(ctx context.Context, folder string) (index.Stats, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	prev, err := index.Load(s.indexPath)
	if err != nil {
		// A missing or malformed previous index just means a full build.
		s.logger.Info("build: starting fresh", slog.String("reason", err.Error()))
		prev = nil
	}

	ix, err := s.builder.Build(ctx, folder, nil, prev)
	if err != nil {
		return index.Stats{}, err
	}
	if err := index.Save(ix, s.indexPath); err != nil {
		return index.Stats{}, err
	}

	// A build against the folder the loaded index covers (or no loaded
	// index at all) installs the fresh result; a build against any other
	// folder leaves the loaded index in place but marks it stale.
	if cur, _, state := s.searcher.Snapshot(); state != search.StateUnloaded && cur != nil &&
		cur.Metadata.IndexedFolderPath != ix.Metadata.IndexedFolderPath {
		s.searcher.NoteBuild(ix.Metadata.IndexedFolderPath)
	} else {
		s.searcher.SetIndex(ix, s.indexPath)
	}
	return index.StatsFor(ix, s.indexPath), nil
}

// IndexStats reports counts for the currently loaded index.
func (s *Service) IndexStats() (index.Stats, search.State, error) {
	ix, path, state := s.searcher.Snapshot()
	if ix == nil {
		return index.Stats{}, state, nil
	}
	return index.StatsFor(ix, path), state, nil
}

// MarkStale flags the loaded index as out of date, e.g. from the watcher.
func (s *Service) MarkStale() {
	s.searcher.MarkStale()
}
