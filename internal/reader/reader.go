// Package reader loads chat-export files (JSON, HTML, SMS XML, plain text)
// into a canonical text blob with per-message provenance.
package reader

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/starford/raido/internal/models"
)

// Options controls blob rendering.
type Options struct {
	// RoleHeaders prefixes each message with its role when rendering the
	// blob text.
	RoleHeaders bool
}

// Reader converts raw export bytes into a canonical Blob.
type Reader struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Reader. A nil logger falls back to slog.Default.
func New(opts Options, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{opts: opts, logger: logger}
}

// ReadCanonical decodes data according to the file extension of path.
// Unknown extensions are treated as plain text. Decoding is UTF-8 with
// replacement; the raw bytes are never interpreted in any other charset.
func (r *Reader) ReadCanonical(path string, data []byte) (*models.Blob, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return r.parseJSONExport(data)
	case ".html", ".htm":
		return r.parseHTML(data)
	case ".xml":
		return r.parseSMS(data)
	default:
		return &models.Blob{Text: sanitize(data), Kind: "text"}, nil
	}
}

// sanitize decodes bytes as UTF-8, replacing invalid sequences.
func sanitize(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}
