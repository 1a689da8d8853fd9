// Package normalize provides the canonical text form shared by keyword
// matching, duplicate detection, and channel-title resolution.
//
// Two strings are considered equivalent when their folded forms are equal:
// case is ignored (full Unicode case folding), "ё" is treated as "е", and
// runs of whitespace count as a single space.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var (
	folder = cases.Fold()

	// whitespaceRE collapses consecutive whitespace to a single space.
	whitespaceRE = regexp.MustCompile(`\s+`)

	// yoReplacer folds the Cyrillic "ё" to "е" after case folding.
	yoReplacer = strings.NewReplacer("ё", "е")
)

// Fold returns the canonical form of s: trimmed, case-folded, with "ё"
// mapped to "е" and internal whitespace collapsed. Fold is idempotent.
func Fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = folder.String(s)
	s = yoReplacer.Replace(s)
	return whitespaceRE.ReplaceAllString(s, " ")
}
