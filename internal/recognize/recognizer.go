// Package recognize applies the pattern catalog to free text and emits
// typed, classified entries.
package recognize

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/raido/internal/models"
)

const maxTitleLen = 100

var blankLineRe = regexp.MustCompile(`\n[ \t]*\n`)

// Recognizer applies a rule catalog with injected classifier policies.
// It is safe for concurrent use: all state is read-only after construction.
type Recognizer struct {
	rules   []Rule
	content ContentPolicy
	subject SubjectPolicy
	dedupe  bool
	logger  *slog.Logger
}

// New creates a Recognizer. A nil logger falls back to slog.Default.
func New(rules []Rule, content ContentPolicy, subject SubjectPolicy, dedupe bool, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recognizer{
		rules:   rules,
		content: content,
		subject: subject,
		dedupe:  dedupe,
		logger:  logger,
	}
}

// NewDefault creates a Recognizer with the built-in catalog and policies.
func NewDefault(dedupe bool, logger *slog.Logger) *Recognizer {
	return New(Catalog(), DefaultContentPolicy(), DefaultSubjectPolicy(), dedupe, logger)
}

// candidate is a matched marker before classification.
type candidate struct {
	typ    models.EntryType
	start  int
	marker string
	number *int
	body   string
}

// Recognize scans blob for every catalog rule and returns the recognized
// entries in marker order. A rule that panics during evaluation is skipped
// for this text; the remaining rules still run. An empty or unmatched blob
// yields no entries and no error.
func (r *Recognizer) Recognize(path, blob string) []models.Entry {
	var cands []candidate
	for _, rule := range r.rules {
		matched, err := r.applyRule(rule, blob)
		if err != nil {
			r.logger.Warn("recognize: rule failed",
				slog.String("path", path),
				slog.String("type", string(rule.Type)),
				slog.String("error", err.Error()))
			continue
		}
		cands = append(cands, matched...)
	}

	// Within a file, entries appear in the order their markers appear.
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].start < cands[j].start })

	seen := make(map[string]struct{})
	entries := make([]models.Entry, 0, len(cands))
	for _, c := range cands {
		if r.dedupe {
			key := string(c.typ) + "\x00" + strings.ToLower(c.body)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}

		cls := r.content.Classify(c.body)
		e := models.Entry{
			Source:               path,
			Type:                 c.typ,
			Title:                buildTitle(c.marker, c.body),
			Number:               c.number,
			Date:                 deriveDate(c.body, path),
			Text:                 c.body,
			AmandaRelated:        r.subject.Related(c.marker + "\n" + c.body),
			PhoenixCodex:         cls.PhoenixCodex,
			Confidence:           cls.Confidence,
			Category:             cls.Category,
			ClassificationReason: cls.Reason,
		}
		entries = append(entries, e)
	}
	return entries
}

// applyRule runs one rule over blob, recovering from panics so a single
// misbehaving pattern cannot abort the whole scan.
func (r *Recognizer) applyRule(rule Rule, blob string) (cands []candidate, err error) {
	defer func() {
		if p := recover(); p != nil {
			cands = nil
			err = fmt.Errorf("rule %s panicked: %v", rule.Type, p)
		}
	}()

	names := rule.Marker.SubexpNames()
	for _, loc := range rule.Marker.FindAllStringSubmatchIndex(blob, -1) {
		groups := make(map[string]string)
		for gi, name := range names {
			if name == "" || loc[2*gi] < 0 {
				continue
			}
			groups[name] = blob[loc[2*gi]:loc[2*gi+1]]
		}

		typ := rule.Type
		if rule.Resolve != nil {
			resolved, ok := rule.Resolve(groups)
			if !ok {
				continue
			}
			typ = resolved
		}

		var number *int
		if raw, ok := groups["number"]; ok && raw != "" {
			if n, convErr := strconv.Atoi(raw); convErr == nil && n >= 0 {
				number = models.Num(n)
			}
		}

		body := sliceBody(blob, loc[1])
		if body == "" {
			continue
		}

		cands = append(cands, candidate{
			typ:    typ,
			start:  loc[0],
			marker: cleanMarker(blob[loc[0]:loc[1]]),
			number: number,
			body:   body,
		})
	}
	return cands, nil
}

// sliceBody extracts the contiguous text after a marker, bounded by the next
// blank line or end of text, trimmed.
func sliceBody(blob string, from int) string {
	rest := blob[from:]
	if loc := blankLineRe.FindStringIndex(rest); loc != nil {
		rest = rest[:loc[0]]
	}
	return strings.TrimSpace(rest)
}

// buildTitle derives the entry title from the cleaned marker text and the
// first body line, capped at maxTitleLen.
func buildTitle(marker, body string) string {
	title := marker
	if line := firstLine(body); line != "" {
		title = marker + ": " + line
	}
	if runes := []rune(title); len(runes) > maxTitleLen {
		title = string(runes[:maxTitleLen])
	}
	return title
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// cleanMarker collapses whitespace in the matched marker and strips the
// trailing separator.
func cleanMarker(m string) string {
	m = strings.Join(strings.Fields(m), " ")
	return strings.TrimRight(m, ":- \t")
}
