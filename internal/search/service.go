// Package search answers queries over a loaded token index. Three modes are
// supported: exact token lookup, fuzzy widening over the index vocabulary,
// and stem-overlap scoring against file content.
package search

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/govern"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/textutil"
)

type Mode string

const (
	ModeExact Mode = "exact"
	ModeFuzzy Mode = "fuzzy"
	ModeStem  Mode = "stem"
)

type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// State tracks the lifecycle of the loaded index.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoaded   State = "loaded"
	StateStale    State = "stale"
)

// Options carries the service-wide defaults.
type Options struct {
	ContextLines        int
	SimilarityThreshold float64
	StemCutoff          float64
	CaseSensitive       bool
	DefaultLogic        Logic
	MaxSnippetsPerFile  int
}

func (o Options) withDefaults() Options {
	if o.SimilarityThreshold == 0 {
		o.SimilarityThreshold = 0.8
	}
	if o.StemCutoff == 0 {
		o.StemCutoff = 0.1
	}
	if o.DefaultLogic == "" {
		o.DefaultLogic = LogicAnd
	}
	if o.MaxSnippetsPerFile == 0 {
		o.MaxSnippetsPerFile = 5
	}
	if o.ContextLines == 0 {
		o.ContextLines = 2
	}
	return o
}

// Query is one search request. Zero-valued fields fall back to the service
// defaults.
type Query struct {
	Text        string
	Mode        Mode
	Logic       Logic
	WithContext bool
	Limit       int
}

// Result is one matching file.
type Result struct {
	FileID        string           `json:"file_id"`
	FilePath      string           `json:"file_path"`
	DisplayName   string           `json:"display_name"`
	ChatStartedAt string           `json:"chat_started_at,omitempty"`
	ChatEndedAt   string           `json:"chat_ended_at,omitempty"`
	Detail        index.FileDetail `json:"detail"`
	Score         float64          `json:"score,omitempty"`
	Snippets      []string         `json:"snippets,omitempty"`
}

// Response wraps the result list. Diagnostic is set instead of results when
// an AND query dead-ends; it names the term that emptied the result set.
type Response struct {
	Results    []Result `json:"results"`
	Diagnostic string   `json:"diagnostic,omitempty"`
}

// Service owns the loaded index and serves queries against it. Queries are
// safe to run concurrently; loading and searching are serialized by an
// internal lock.
type Service struct {
	mu        sync.RWMutex
	state     State
	ix        *index.Index
	indexPath string

	gov    *govern.Governor
	opts   Options
	logger *slog.Logger
}

func New(gov *govern.Governor, opts Options, logger *slog.Logger) *Service {
	return &Service{
		state:  StateUnloaded,
		gov:    gov,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// Load reads the index document at path and makes it current.
func (s *Service) Load(path string) error {
	ix, err := index.Load(path)
	if err != nil {
		return err
	}
	s.SetIndex(ix, path)
	return nil
}

// SetIndex installs an already-built index, e.g. right after a build.
func (s *Service) SetIndex(ix *index.Index, path string) {
	s.mu.Lock()
	s.ix = ix
	s.indexPath = path
	s.state = StateLoaded
	s.mu.Unlock()
	if s.gov != nil {
		s.gov.InvalidateResults()
	}
	s.logger.Info("search: index loaded",
		slog.String("path", path),
		slog.Int("files", len(ix.Files)),
		slog.Int("tokens", len(ix.Tokens)))
}

// Unload drops the current index.
func (s *Service) Unload() {
	s.mu.Lock()
	s.ix = nil
	s.indexPath = ""
	s.state = StateUnloaded
	s.mu.Unlock()
	if s.gov != nil {
		s.gov.InvalidateResults()
	}
}

// State reports the current lifecycle state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns the current index, its path, and the lifecycle state.
// The index pointer is immutable once installed.
func (s *Service) Snapshot() (*index.Index, string, State) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ix, s.indexPath, s.state
}

// MarkStale flags the loaded index as out of date. Searches still run; the
// caller decides when to reload.
func (s *Service) MarkStale() {
	s.mu.Lock()
	if s.state == StateLoaded {
		s.state = StateStale
	}
	s.mu.Unlock()
}

// NoteBuild transitions to Stale when a build completed against a folder
// other than the one the loaded index covers.
func (s *Service) NoteBuild(folderPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateLoaded && s.ix != nil && s.ix.Metadata.IndexedFolderPath != folderPath {
		s.state = StateStale
	}
}

// Search runs one query. It fails with apperr.ErrIndexNotLoaded when no
// index is loaded; a stale index is still searchable.
func (s *Service) Search(q Query) (*Response, error) {
	s.mu.RLock()
	ix, path, state := s.ix, s.indexPath, s.state
	s.mu.RUnlock()
	if state == StateUnloaded || ix == nil {
		return nil, apperr.ErrIndexNotLoaded
	}

	if q.Mode == "" {
		q.Mode = ModeExact
	}
	if q.Logic == "" {
		q.Logic = s.opts.DefaultLogic
	}

	key := cacheKey(q, path)
	if s.gov != nil {
		if cached, ok := s.gov.CachedResult(key); ok {
			if resp, ok := cached.(*Response); ok {
				return resp, nil
			}
		}
	}

	var resp *Response
	var err error
	switch q.Mode {
	case ModeExact:
		resp, err = s.searchExact(ix, q)
	case ModeFuzzy:
		resp, err = s.searchFuzzy(ix, q)
	case ModeStem:
		resp, err = s.searchStem(ix, q)
	default:
		return nil, fmt.Errorf("search: unknown mode %q", q.Mode)
	}
	if err != nil {
		return nil, err
	}

	if q.WithContext {
		s.attachSnippets(ix, q, resp.Results)
	}
	if s.gov != nil && resp.Diagnostic == "" && len(resp.Results) > 0 {
		s.gov.StoreResult(key, resp)
	}
	return resp, nil
}

func cacheKey(q Query, indexPath string) string {
	return strings.Join([]string{
		q.Text, string(q.Mode), string(q.Logic),
		fmt.Sprintf("ctx=%t/n=%d", q.WithContext, q.Limit),
		indexPath,
	}, "\x1f")
}

var dateShapeRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(?:[ T]\d{2}:\d{2}(?::\d{2})?)?$|^\d{2}:\d{2}(?::\d{2})?$`)

// queryTerms splits a query on whitespace. Splitting on punctuation would
// destroy date-shaped terms like 2024-05-01 before they can be matched
// against chat bounds.
func queryTerms(text string, fold bool) []string {
	if fold {
		text = strings.ToLower(text)
	}
	return strings.Fields(text)
}

// searchExact resolves each query token to a file-id set and combines the
// sets under the requested logic.
func (s *Service) searchExact(ix *index.Index, q Query) (*Response, error) {
	terms := queryTerms(q.Text, !s.opts.CaseSensitive)
	if len(terms) == 0 {
		return &Response{}, nil
	}

	var combined map[string]struct{}
	for _, term := range terms {
		set := s.idsForTerm(ix, term)
		if combined == nil {
			combined = set
		} else if q.Logic == LogicAnd {
			combined = intersect(combined, set)
		} else {
			for id := range set {
				combined[id] = struct{}{}
			}
		}
		if q.Logic == LogicAnd && len(combined) == 0 {
			return &Response{Diagnostic: fmt.Sprintf("no files match %q", term)}, nil
		}
	}
	return &Response{Results: s.collect(ix, combined, nil)}, nil
}

// idsForTerm is the union of the four exact-match sources for one term.
func (s *Service) idsForTerm(ix *index.Index, term string) map[string]struct{} {
	set := make(map[string]struct{})

	for _, id := range ix.Tokens[term] {
		set[id] = struct{}{}
	}

	dateShaped := dateShapeRe.MatchString(term)
	for id, d := range ix.FileDetails {
		if containsFold(d.DisplayName, term, s.opts.CaseSensitive) {
			set[id] = struct{}{}
			continue
		}
		if dateShaped && (strings.Contains(d.ChatStartedAt, term) || strings.Contains(d.ChatEndedAt, term)) {
			set[id] = struct{}{}
			continue
		}
		if containsFold(d.Kind, term, s.opts.CaseSensitive) ||
			containsFold(d.Category, term, s.opts.CaseSensitive) {
			set[id] = struct{}{}
			continue
		}
		for _, tag := range d.Tags {
			if containsFold(tag, term, s.opts.CaseSensitive) {
				set[id] = struct{}{}
				break
			}
		}
	}
	return set
}

// searchFuzzy starts from each term's exact-match set and widens it with
// every index token within the similarity threshold, so a fuzzy search can
// only ever add to what an exact search finds.
func (s *Service) searchFuzzy(ix *index.Index, q Query) (*Response, error) {
	terms := queryTerms(q.Text, true)
	if len(terms) == 0 {
		return &Response{}, nil
	}
	threshold := s.opts.SimilarityThreshold

	var combined map[string]struct{}
	for _, term := range terms {
		set := s.idsForTerm(ix, term)
		for tok, ids := range ix.Tokens {
			if tok == term {
				continue
			}
			if similarity(term, tok) >= threshold {
				for _, id := range ids {
					set[id] = struct{}{}
				}
			}
		}
		for id, d := range ix.FileDetails {
			if similarity(term, strings.ToLower(d.DisplayName)) >= threshold {
				set[id] = struct{}{}
			}
		}

		if combined == nil {
			combined = set
		} else if q.Logic == LogicAnd {
			combined = intersect(combined, set)
		} else {
			for id := range set {
				combined[id] = struct{}{}
			}
		}
		if q.Logic == LogicAnd && len(combined) == 0 {
			return &Response{Diagnostic: fmt.Sprintf("no files match %q", term)}, nil
		}
	}
	return &Response{Results: s.collect(ix, combined, nil)}, nil
}

// searchStem scores each file by the share of query stems present in the
// file's own stem set, re-derived from content on demand.
func (s *Service) searchStem(ix *index.Index, q Query) (*Response, error) {
	qStems := textutil.StemSet(q.Text)
	if len(qStems) == 0 {
		return &Response{}, nil
	}

	scores := make(map[string]float64)
	for id, rel := range ix.Files {
		content, err := s.fileContent(ix, rel)
		if err != nil {
			s.logger.Warn("search: content unavailable",
				slog.String("path", rel), slog.String("error", err.Error()))
			continue
		}
		docStems := textutil.StemSet(string(content))
		overlap := 0
		for st := range qStems {
			if _, ok := docStems[st]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		score := float64(overlap) / float64(len(qStems))
		if score >= s.opts.StemCutoff {
			scores[id] = score
		}
	}

	results := s.collect(ix, keys(scores), scores)
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DisplayName < results[j].DisplayName
	})
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return &Response{Results: results}, nil
}

// collect materializes Result records for a set of ids, sorted by display
// name.
func (s *Service) collect(ix *index.Index, ids map[string]struct{}, scores map[string]float64) []Result {
	results := make([]Result, 0, len(ids))
	for id := range ids {
		rel := ix.Files[id]
		d := ix.FileDetails[id]
		r := Result{
			FileID:        id,
			FilePath:      filepath.Join(ix.Metadata.IndexedFolderPath, rel),
			DisplayName:   d.DisplayName,
			ChatStartedAt: d.ChatStartedAt,
			ChatEndedAt:   d.ChatEndedAt,
			Detail:        d,
		}
		if scores != nil {
			r.Score = scores[id]
		}
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].DisplayName != results[j].DisplayName {
			return results[i].DisplayName < results[j].DisplayName
		}
		return results[i].FilePath < results[j].FilePath
	})
	return results
}

func (s *Service) fileContent(ix *index.Index, rel string) ([]byte, error) {
	abs := filepath.Join(ix.Metadata.IndexedFolderPath, rel)
	if s.gov != nil {
		return s.gov.FileContent(abs)
	}
	return readFile(abs)
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func keys(m map[string]float64) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func containsFold(haystack, needle string, caseSensitive bool) bool {
	if haystack == "" || needle == "" {
		return false
	}
	if caseSensitive {
		return strings.Contains(haystack, needle)
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
