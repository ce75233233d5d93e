package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/storage"
)

// indexShape mirrors Index with pointer sections so a missing or mistyped
// top-level key is detectable after unmarshalling.
type indexShape struct {
	Metadata    *Metadata              `json:"metadata"`
	Tokens      *map[string][]string   `json:"tokens"`
	Files       *map[string]string     `json:"files"`
	FileDetails *map[string]FileDetail `json:"file_details"`
}

// Load reads and validates an index document from disk. A document missing
// any of the four required sections fails with apperr.ErrIndexShape and must
// be rebuilt.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("index: %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("index: read %s: %w", path, err)
	}

	var shape indexShape
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("index: %s: %v: %w", path, err, apperr.ErrIndexShape)
	}
	switch {
	case shape.Metadata == nil:
		return nil, fmt.Errorf("index: %s: missing metadata: %w", path, apperr.ErrIndexShape)
	case shape.Tokens == nil:
		return nil, fmt.Errorf("index: %s: missing tokens: %w", path, apperr.ErrIndexShape)
	case shape.Files == nil:
		return nil, fmt.Errorf("index: %s: missing files: %w", path, apperr.ErrIndexShape)
	case shape.FileDetails == nil:
		return nil, fmt.Errorf("index: %s: missing file_details: %w", path, apperr.ErrIndexShape)
	}

	ix := &Index{
		Metadata:    *shape.Metadata,
		Tokens:      *shape.Tokens,
		Files:       *shape.Files,
		FileDetails: *shape.FileDetails,
	}
	if ix.Tokens == nil {
		ix.Tokens = make(map[string][]string)
	}
	if ix.Files == nil {
		ix.Files = make(map[string]string)
	}
	if ix.FileDetails == nil {
		ix.FileDetails = make(map[string]FileDetail)
	}
	return ix, nil
}

// Save persists the index at path via write-then-rename. The metadata file
// name is refreshed to the basename of path before writing.
func Save(ix *Index, path string) error {
	ix.Metadata.IndexFileName = filepath.Base(path)
	data, err := json.MarshalIndent(ix, "", "  ")
	if err != nil {
		return fmt.Errorf("index: marshal: %w", err)
	}
	if err := storage.AtomicWrite(path, data); err != nil {
		return fmt.Errorf("index: save %s: %w", path, err)
	}
	return nil
}

// Stats summarizes a loaded index.
type Stats struct {
	FileCount  int   `json:"file_count"`
	TokenCount int   `json:"token_count"`
	Bytes      int64 `json:"bytes"`
}

// StatsFor reports counts from the in-memory index and the byte size of the
// persisted document when it exists.
func StatsFor(ix *Index, path string) Stats {
	s := Stats{FileCount: len(ix.Files), TokenCount: len(ix.Tokens)}
	if info, err := os.Stat(path); err == nil {
		s.Bytes = info.Size()
	}
	return s
}
