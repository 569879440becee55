package match

import (
	"unicode/utf8"

	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
)

var differ = diffpatch.New()

// Distance is the Levenshtein distance between a and b, in runes.
func Distance(a, b string) int {
	if a == b {
		return 0
	}
	return differ.DiffLevenshtein(differ.DiffMain(a, b, false))
}

// Similarity is 1 - Distance/max(len) in runes; two empty strings are
// identical.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(Distance(a, b))/float64(longest)
}

// commonAffixes returns the byte lengths of the longest common prefix and
// suffix of a and b. The two never overlap within the shorter string.
func commonAffixes(a, b string) (prefix, suffix int) {
	ra, rb := []rune(a), []rune(b)
	p := differ.DiffCommonPrefix(a, b)
	s := differ.DiffCommonSuffix(a, b)
	if limit := min(len(ra), len(rb)) - p; s > limit {
		s = limit
	}
	prefix = len(string(ra[:p]))
	suffix = len(string(ra[len(ra)-s:]))
	return prefix, suffix
}
