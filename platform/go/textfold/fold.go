// Package textfold normalizes text for accent and case insensitive matching.
package textfold

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// folder bundles the stateful transformers of one Fold call; each call
// borrows its own.
type folder struct {
	strip transform.Transformer
	caser cases.Caser
}

var folders = sync.Pool{
	New: func() any {
		return &folder{
			strip: transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
			caser: cases.Fold(),
		}
	},
}

// Fold strips combining marks and applies Unicode case folding, so that
// "Élodie" and "elodie" fold to the same string. It is safe for concurrent use.
func Fold(s string) string {
	if s == "" {
		return s
	}
	f := folders.Get().(*folder)
	defer folders.Put(f)

	stripped, _, err := transform.String(f.strip, s)
	if err != nil {
		stripped = s
	}
	return f.caser.String(stripped)
}

// Contains reports whether needle occurs in haystack after folding both.
func Contains(haystack, needle string) bool {
	return strings.Contains(Fold(haystack), Fold(needle))
}
