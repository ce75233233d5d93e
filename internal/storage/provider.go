// Package storage defines the archive file-system abstraction.
package storage

import "time"

// FileMeta is a lightweight record for one file found under the archive root.
type FileMeta struct {
	Path    string    `json:"path"` // relative to the archive root
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Provider is the interface for archive file operations.
type Provider interface {
	// Root returns the absolute archive root path.
	Root() string
	// List walks the tree and returns metadata for every file whose base
	// name matches one of the glob patterns. Empty patterns match all files.
	List(patterns []string) ([]FileMeta, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// WriteAtomic atomically writes content to path (relative to root).
	WriteAtomic(path string, content []byte) error
}
