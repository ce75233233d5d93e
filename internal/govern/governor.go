// Package govern tracks process memory against configured watermarks and
// owns the search-result and file-content caches.
package govern

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/starford/raido/internal/apperr"
)

// Config holds governor thresholds and cache capacities.
type Config struct {
	WarningMB      int
	CriticalMB     int
	QueryCacheSize int
	FileCacheSize  int
}

// recessionMax bounds how long a dispatcher blocks waiting for the resident
// size to drop back below the critical watermark.
const (
	recessionPoll = 250 * time.Millisecond
	recessionMax  = 5 * time.Second
)

type fileEntry struct {
	data    []byte
	modTime time.Time
}

// Governor is safe for concurrent use.
type Governor struct {
	warnBytes uint64
	critBytes uint64
	proc      *process.Process
	logger    *slog.Logger

	queries *lru.Cache[string, any]
	files   *lru.Cache[string, fileEntry]
}

// New creates a Governor. Zero thresholds disable watermark checks.
func New(cfg Config, logger *slog.Logger) (*Governor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueryCacheSize <= 0 {
		cfg.QueryCacheSize = 128
	}
	if cfg.FileCacheSize <= 0 {
		cfg.FileCacheSize = 64
	}

	queries, err := lru.New[string, any](cfg.QueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("govern: query cache: %w", err)
	}
	files, err := lru.New[string, fileEntry](cfg.FileCacheSize)
	if err != nil {
		return nil, fmt.Errorf("govern: file cache: %w", err)
	}

	g := &Governor{
		warnBytes: uint64(cfg.WarningMB) << 20,
		critBytes: uint64(cfg.CriticalMB) << 20,
		logger:    logger,
		queries:   queries,
		files:     files,
	}
	if proc, procErr := process.NewProcess(int32(os.Getpid())); procErr == nil {
		g.proc = proc
	}
	return g, nil
}

// residentBytes samples the process resident size, falling back to the Go
// heap when process inspection is unavailable.
func (g *Governor) residentBytes() uint64 {
	if g.proc != nil {
		if mi, err := g.proc.MemoryInfo(); err == nil && mi != nil {
			return mi.RSS
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// CheckPoint is consulted at file boundaries. Crossing the warning
// watermark forces a reclamation cycle; crossing the critical watermark
// blocks until the level recedes or recessionMax elapses, in which case
// apperr.ErrResourceExhausted is returned.
func (g *Governor) CheckPoint(ctx context.Context) error {
	if g.critBytes == 0 && g.warnBytes == 0 {
		return nil
	}

	rss := g.residentBytes()
	if g.warnBytes > 0 && rss >= g.warnBytes {
		g.logger.Warn("govern: warning watermark crossed, reclaiming",
			slog.Uint64("resident_bytes", rss))
		debug.FreeOSMemory()
		rss = g.residentBytes()
	}
	if g.critBytes == 0 || rss < g.critBytes {
		return nil
	}

	g.logger.Warn("govern: critical watermark crossed, suspending dispatch",
		slog.Uint64("resident_bytes", rss))
	deadline := time.Now().Add(recessionMax)
	ticker := time.NewTicker(recessionPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			debug.FreeOSMemory()
			if g.residentBytes() < g.critBytes {
				return nil
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("govern: resident size stayed above critical watermark: %w",
					apperr.ErrResourceExhausted)
			}
		}
	}
}

// CachedResult returns a cached search result for key.
func (g *Governor) CachedResult(key string) (any, bool) {
	return g.queries.Get(key)
}

// StoreResult caches a search result. Callers must only store results of
// diagnostic-free, non-empty queries.
func (g *Governor) StoreResult(key string, v any) {
	g.queries.Add(key, v)
}

// InvalidateResults drops every cached search result. Called when an index
// is rebuilt or unloaded.
func (g *Governor) InvalidateResults() {
	g.queries.Purge()
}

// FileContent returns the bytes of path through the file-content cache.
// A cached copy is invalidated when the file's mod time changes.
func (g *Governor) FileContent(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("govern: stat %s: %w", path, err)
	}
	if e, ok := g.files.Get(path); ok && e.modTime.Equal(info.ModTime()) {
		return e.data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("govern: read %s: %w", path, err)
	}
	g.files.Add(path, fileEntry{data: data, modTime: info.ModTime()})
	return data, nil
}
