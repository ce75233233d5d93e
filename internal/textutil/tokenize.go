// Package textutil provides tokenization, stemming, and chat-timestamp
// extraction over free text.
package textutil

import (
	"strings"
	"unicode"
)

// Tokenize splits text into maximal runs of alphanumeric code points, in
// order of appearance. When fold is true tokens are lowercased. Non-token
// characters are discarded.
func Tokenize(text string, fold bool) []string {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if fold {
		for i, t := range tokens {
			tokens[i] = strings.ToLower(t)
		}
	}
	return tokens
}

// TokenSet returns the unique tokens of text as a set.
func TokenSet(text string, fold bool) map[string]struct{} {
	tokens := Tokenize(text, fold)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
