package search

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// similarity is the Ratcliff/Obershelp ratio between two strings, computed
// character-wise.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}
