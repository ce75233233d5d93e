package recognize

import (
	"fmt"
	"strings"

	"github.com/starford/raido/internal/textutil"
)

// Classification is the result of scoring an entry body.
type Classification struct {
	PhoenixCodex bool
	Confidence   float64
	Category     string
	Reason       string
}

// ContentPolicy scores text against two indicator vocabularies: positive
// (growth, reflection, practice language) and negative (ritual and occult
// vocabulary). Every occurrence of a vocabulary token counts once,
// regardless of term length or duplication within the vocabulary.
type ContentPolicy struct {
	Positive map[string]struct{}
	Negative map[string]struct{}
}

// threshold above which the positive ratio marks text as Phoenix Codex material.
const contentRatioThreshold = 0.6

// DefaultContentPolicy returns the built-in indicator vocabularies.
// "spiritual" appears in both lists on purpose; each scan hit weighs 1.
func DefaultContentPolicy() ContentPolicy {
	return ContentPolicy{
		Positive: vocab(
			"growth", "grow", "reflection", "reflect", "practice", "practical",
			"journal", "journaling", "journaled", "learn", "learned", "learning",
			"insight", "habit", "habits", "mindful", "mindfulness", "gratitude",
			"boundaries", "boundary", "healing", "progress", "goal", "goals",
			"technique", "skill", "skills", "exercise", "routine", "awareness",
			"clarity", "discipline", "grounding", "spiritual",
		),
		Negative: vocab(
			"ritual", "rituals", "spell", "spells", "casting", "cast", "occult",
			"invocation", "invoke", "invoking", "sigil", "sigils", "candle",
			"altar", "incantation", "summon", "summoning", "banish", "banishing",
			"hex", "tarot", "divination", "servitor", "conjure", "spirits",
			"spiritual",
		),
	}
}

// Classify scores body and derives the Phoenix Codex flag, confidence,
// category, and a human-readable reason.
func (p ContentPolicy) Classify(body string) Classification {
	var pos, neg int
	for _, tok := range textutil.Tokenize(body, true) {
		if _, ok := p.Positive[tok]; ok {
			pos++
		}
		if _, ok := p.Negative[tok]; ok {
			neg++
		}
	}

	var ratio float64
	if pos+neg > 0 {
		ratio = float64(pos) / float64(pos+neg)
	}

	c := Classification{
		Confidence: ratio,
		Category:   "Other",
		Reason:     fmt.Sprintf("positive=%d negative=%d", pos, neg),
	}
	if pos > neg {
		c.Category = "Personal Growth"
		if ratio > contentRatioThreshold {
			c.PhoenixCodex = true
		}
	}
	return c
}

// SubjectPolicy decides whether text concerns the named subject. Marker
// tokens are accepted on their own; generic phrases are accepted only when
// the proper-name token also appears in the text.
type SubjectPolicy struct {
	ProperName     string
	Markers        map[string]struct{}
	GenericPhrases []string
}

// DefaultSubjectPolicy returns the built-in Amanda subject vocabulary.
func DefaultSubjectPolicy() SubjectPolicy {
	return SubjectPolicy{
		ProperName: "amanda",
		Markers:    vocab("amanda", "amandamap"),
		GenericPhrases: []string{
			"my love", "her energy", "she said yes", "the map", "our connection",
		},
	}
}

// Related reports whether text is about the policy's subject.
func (p SubjectPolicy) Related(text string) bool {
	tokens := textutil.TokenSet(text, true)
	for m := range p.Markers {
		if _, ok := tokens[m]; ok {
			return true
		}
	}
	if _, ok := tokens[p.ProperName]; !ok {
		return false
	}
	lower := strings.ToLower(text)
	for _, phrase := range p.GenericPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func vocab(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
