package recognize

import (
	"path/filepath"
	"regexp"
	"time"
)

var (
	chatStampRe = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\b`)
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	dashDateRe  = regexp.MustCompile(`\b(\d{1,2})-(\d{1,2})-(\d{4})\b`)
)

// deriveDate attaches a date to an entry in preference order: a
// YYYY-MM-DD HH:MM:SS chat timestamp inside the body, then a bare date in
// ISO or US form anywhere in the body, then a date found in the source
// filename. Returns empty when nothing validates.
func deriveDate(body, sourcePath string) string {
	if m := chatStampRe.FindStringSubmatch(body); m != nil {
		if _, err := time.Parse("2006-01-02 15:04:05", m[1]); err == nil {
			return m[1]
		}
	}
	if d := scanDate(body); d != "" {
		return d
	}
	return scanDate(filepath.Base(sourcePath))
}

// scanDate finds the first valid date in text and normalizes it to ISO form.
func scanDate(text string) string {
	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		iso := m[0]
		if _, err := time.Parse("2006-01-02", iso); err == nil {
			return iso
		}
	}
	for _, re := range []*regexp.Regexp{slashDateRe, dashDateRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			iso := m[3] + "-" + pad2(m[1]) + "-" + pad2(m[2])
			if _, err := time.Parse("2006-01-02", iso); err == nil {
				return iso
			}
		}
	}
	return ""
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
