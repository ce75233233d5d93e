package models

// Message is one chat message extracted from an export file.
type Message struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"` // "YYYY-MM-DD HH:MM:SS" when known
	Sender    string `json:"sender,omitempty"`    // SMS sources only
	Receiver  string `json:"receiver,omitempty"`  // SMS sources only
}

// Blob is the canonical text form of one export file plus provenance.
type Blob struct {
	Text     string    `json:"text"`
	Kind     string    `json:"kind"` // "json", "html", "sms", "text"
	Messages []Message `json:"messages,omitempty"`
}

// FileError records one recovered per-file failure.
type FileError struct {
	Path   string `json:"path"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Report aggregates the outcome of a top-level scan operation.
type Report struct {
	Scanned      int               `json:"scanned"`
	Succeeded    int               `json:"succeeded"`
	Failed       int               `json:"failed"`
	Skipped      int               `json:"skipped"`
	EntryCount   int               `json:"entry_count"`
	CountsByType map[EntryType]int `json:"counts_by_type,omitempty"`
	Errors       []FileError       `json:"errors,omitempty"`
	OutputPath   string            `json:"output_path,omitempty"`
}
