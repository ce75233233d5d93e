// Package models defines the domain types for Raido.
package models

// EntryType discriminates the recognized entry families.
type EntryType string

const (
	TypeThreshold             EntryType = "Threshold"
	TypeFieldPulse            EntryType = "FieldPulse"
	TypeWhisperedFlame        EntryType = "WhisperedFlame"
	TypeFlameVow              EntryType = "FlameVow"
	TypeAmandaMap             EntryType = "AmandaMap"
	TypePhoenixCodex          EntryType = "PhoenixCodex"
	TypePhoenixCodexThreshold EntryType = "PhoenixCodexThreshold"
	TypePhoenixCodexSilentAct EntryType = "PhoenixCodexSilentAct"
	TypePhoenixCodexRitual    EntryType = "PhoenixCodexRitual"
	TypePhoenixCodexCollapse  EntryType = "PhoenixCodexCollapse"
	TypeConversation          EntryType = "Conversation"
	TypeError                 EntryType = "Error"
)

// EntryTypes lists every valid entry type.
var EntryTypes = []EntryType{
	TypeThreshold,
	TypeFieldPulse,
	TypeWhisperedFlame,
	TypeFlameVow,
	TypeAmandaMap,
	TypePhoenixCodex,
	TypePhoenixCodexThreshold,
	TypePhoenixCodexSilentAct,
	TypePhoenixCodexRitual,
	TypePhoenixCodexCollapse,
	TypeConversation,
	TypeError,
}

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	for _, k := range EntryTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Entry is a single recognized record extracted from a chat-export file.
// Entries are immutable once emitted by the recognizer.
type Entry struct {
	Source               string    `json:"source"`
	Type                 EntryType `json:"type"`
	Title                string    `json:"title"`
	Number               *int      `json:"number,omitempty"`
	Date                 string    `json:"date,omitempty"`
	Text                 string    `json:"text"`
	AmandaRelated        bool      `json:"is_amanda_related"`
	PhoenixCodex         bool      `json:"is_phoenix_codex"`
	Confidence           float64   `json:"confidence"`
	Category             string    `json:"category,omitempty"`
	ClassificationReason string    `json:"classification_reason,omitempty"`
}

// Num returns a pointer suitable for Entry.Number.
func Num(n int) *int { return &n }
