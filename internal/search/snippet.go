package search

import (
	"os"
	"strings"

	"github.com/starford/raido/internal/index"
)

// attachSnippets fills Result.Snippets for each hit by scanning the file
// line by line.
func (s *Service) attachSnippets(ix *index.Index, q Query, results []Result) {
	phrase := q.Text
	for i := range results {
		rel := ix.Files[results[i].FileID]
		content, err := s.fileContent(ix, rel)
		if err != nil {
			continue
		}
		results[i].Snippets = extractSnippets(string(content), phrase,
			s.opts.ContextLines, s.opts.MaxSnippetsPerFile, s.opts.CaseSensitive)
	}
}

// extractSnippets returns up to maxN windows of k lines around each line
// containing phrase.
func extractSnippets(content, phrase string, k, maxN int, caseSensitive bool) []string {
	if phrase == "" {
		return nil
	}
	needle := phrase
	if !caseSensitive {
		needle = strings.ToLower(phrase)
	}

	lines := strings.Split(content, "\n")
	var snippets []string
	for i, line := range lines {
		probe := line
		if !caseSensitive {
			probe = strings.ToLower(line)
		}
		if !strings.Contains(probe, needle) {
			continue
		}
		lo := max(0, i-k)
		hi := min(len(lines), i+k+1)
		snippets = append(snippets, strings.Join(lines[lo:hi], "\n"))
		if len(snippets) >= maxN {
			break
		}
	}
	return snippets
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
