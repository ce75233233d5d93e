package textutil

import (
	"regexp"
	"time"
)

const chatTimeLayout = "2006-01-02 15:04:05"

var bracketedTimeRe = regexp.MustCompile(`\[(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\]`)

// ChatTimestamps scans text for bracketed chat timestamps of the form
// [YYYY-MM-DD HH:MM:SS], validates each by strict parse, and returns the
// lexically first and last valid hits. Both are empty when none are found.
func ChatTimestamps(text string) (first, last string) {
	for _, m := range bracketedTimeRe.FindAllStringSubmatch(text, -1) {
		ts := m[1]
		if _, err := time.Parse(chatTimeLayout, ts); err != nil {
			continue
		}
		if first == "" || ts < first {
			first = ts
		}
		if last == "" || ts > last {
			last = ts
		}
	}
	return first, last
}

// ValidChatTime reports whether ts parses as YYYY-MM-DD HH:MM:SS.
func ValidChatTime(ts string) bool {
	_, err := time.Parse(chatTimeLayout, ts)
	return err == nil
}
