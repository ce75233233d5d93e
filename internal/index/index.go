// Package index maintains the persistent token index over an archive folder.
// The whole index is one JSON document so it can be shipped, inspected, and
// atomically replaced as a unit.
package index

import (
	"sort"
	"strconv"
)

// TimeLayout is the wall-clock format used for every timestamp persisted in
// the index.
const TimeLayout = "2006-01-02 15:04:05"

// Metadata describes the index as a whole.
type Metadata struct {
	CreatedAt         string `json:"created_at"`
	IndexedFolderPath string `json:"indexed_folder_path"`
	IndexFileName     string `json:"index_file_name"`
	FileCount         int    `json:"file_count"`
	TokenCount        int    `json:"token_count"`
}

// FileDetail carries the per-file record keyed by file id.
type FileDetail struct {
	DisplayName   string   `json:"display_name"`
	FileModTime   string   `json:"file_mod_time"`
	IndexedAt     string   `json:"indexed_at"`
	Kind          string   `json:"kind"`
	ChatStartedAt string   `json:"chat_started_at,omitempty"`
	ChatEndedAt   string   `json:"chat_ended_at,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Category      string   `json:"category,omitempty"`
}

// Index is the persisted document. Tokens maps a case-folded token to the
// file ids containing it; Files maps a file id to the path relative to the
// indexed folder. Ids are decimal strings and are stable across rebuilds.
type Index struct {
	Metadata    Metadata              `json:"metadata"`
	Tokens      map[string][]string   `json:"tokens"`
	Files       map[string]string     `json:"files"`
	FileDetails map[string]FileDetail `json:"file_details"`
}

// New returns an empty index with all maps allocated.
func New() *Index {
	return &Index{
		Tokens:      make(map[string][]string),
		Files:       make(map[string]string),
		FileDetails: make(map[string]FileDetail),
	}
}

// IDForPath returns the file id mapped to the given relative path.
func (ix *Index) IDForPath(rel string) (string, bool) {
	for id, p := range ix.Files {
		if p == rel {
			return id, true
		}
	}
	return "", false
}

// NextID returns max(existing ids)+1, or 0 for an empty index.
func (ix *Index) NextID() int {
	next := 0
	for id := range ix.Files {
		if n, err := strconv.Atoi(id); err == nil && n >= next {
			next = n + 1
		}
	}
	return next
}

// sortPostings orders a posting list by numeric id so the persisted form is
// deterministic.
func sortPostings(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a < b
	})
}
