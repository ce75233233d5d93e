package textutil

import (
	"strings"

	snowballeng "github.com/kljensen/snowball/english"
)

// Stem reduces token to its English stem over the lowercased input.
// It is total and idempotent on its own output.
func Stem(token string) string {
	return snowballeng.Stem(strings.ToLower(token), false)
}

// StemSet tokenizes text, stems each token, and returns the unique stems.
func StemSet(text string) map[string]struct{} {
	tokens := Tokenize(text, true)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[Stem(t)] = struct{}{}
	}
	return set
}
