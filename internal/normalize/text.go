package normalize

import (
	"strings"
	"unicode"
)

// stopWords are dropped from description tokens before overlap scoring.
var stopWords = map[string]bool{
	"the": true, "and": true, "with": true, "was": true, "has": true,
	"have": true, "had": true, "for": true, "near": true, "around": true,
	"this": true, "that": true, "its": true, "his": true, "her": true,
	"lost": true, "found": true, "item": true, "left": true, "somewhere": true,
}

// colorGroups lists families of colors treated as near-equivalent. Two
// colors in the same group score a partial color match.
var colorGroups = [][]string{
	{"black", "charcoal", "ebony", "jet"},
	{"white", "ivory", "cream", "off-white"},
	{"blue", "navy", "azure", "teal", "turquoise"},
	{"red", "maroon", "crimson", "burgundy"},
	{"green", "olive", "emerald", "lime"},
	{"yellow", "gold", "golden", "amber"},
	{"grey", "gray", "silver", "slate"},
	{"brown", "tan", "beige", "khaki", "camel"},
	{"purple", "violet", "lavender", "lilac"},
	{"pink", "rose", "magenta", "fuchsia"},
	{"orange", "coral", "peach"},
}

// Tags lowercases, trims and dedupes a tag list, dropping empties.
func Tags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Color canonicalizes a free-text color value.
func Color(color string) string {
	return strings.ToLower(strings.TrimSpace(color))
}

// SameColorGroup reports whether two canonical colors belong to the same
// similar-color family. Exact equality is not checked here.
func SameColorGroup(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	for _, group := range colorGroups {
		foundA, foundB := false, false
		for _, c := range group {
			if c == a {
				foundA = true
			}
			if c == b {
				foundB = true
			}
		}
		if foundA && foundB {
			return true
		}
	}
	return false
}

// Tokenize splits free text into lowercase tokens, dropping stop words and
// tokens shorter than minLen runes. Punctuation separates tokens.
func Tokenize(text string, minLen int) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	var tokens []string
	for _, f := range fields {
		if len([]rune(f)) < minLen {
			continue
		}
		if stopWords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// TokenSet converts a token slice into a membership set.
func TokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// OverlapCoefficient computes |A∩B| / min(|A|,|B|) over two token sets.
// It favors full coverage of the smaller set, which suits pairs where one
// report is much terser than the other. Returns 0 if either set is empty.
func OverlapCoefficient(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	overlap := 0
	for t := range a {
		if b[t] {
			overlap++
		}
	}

	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	return float64(overlap) / float64(minLen)
}

// CommonCount returns the number of shared members between two sets.
func CommonCount(a, b map[string]bool) int {
	n := 0
	for t := range a {
		if b[t] {
			n++
		}
	}
	return n
}

// Location canonicalizes free-text location for exact-equality comparison:
// lowercase, punctuation stripped, whitespace collapsed.
func Location(text string) string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return strings.Join(tokens, " ")
}

// LocationTokens returns location tokens longer than three runes, the
// minimum considered distinctive for the text-location fallback.
func LocationTokens(text string) []string {
	return Tokenize(text, 4)
}
