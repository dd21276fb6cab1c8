package normalize

import (
	postal "github.com/openvenues/gopostal/parser"
)

// LocationParser splits a free-text location into labeled components so
// the text-location fallback can compare like with like (road vs city).
type LocationParser interface {
	Parse(text string) map[string]string
}

// PostalParser implements LocationParser on top of libpostal.
type PostalParser struct{}

// NewPostalParser creates a libpostal-backed location parser.
func NewPostalParser() *PostalParser {
	return &PostalParser{}
}

// Parse returns libpostal component labels (house, road, city, ...) mapped
// to their values for the given location text.
func (p *PostalParser) Parse(text string) map[string]string {
	components := postal.ParseAddress(text)

	parsed := make(map[string]string, len(components))
	for _, c := range components {
		parsed[c.Label] = c.Value
	}
	return parsed
}

// ExpandLocationTokens merges the plain location tokens with tokens from
// parsed components, so "Central Library, 5th Ave" and "library on fifth
// avenue" share more ground. A nil parser returns the plain tokens.
func ExpandLocationTokens(parser LocationParser, text string) []string {
	tokens := LocationTokens(text)
	if parser == nil {
		return tokens
	}

	seen := TokenSet(tokens)
	for _, value := range parser.Parse(text) {
		for _, t := range LocationTokens(value) {
			if !seen[t] {
				seen[t] = true
				tokens = append(tokens, t)
			}
		}
	}
	return tokens
}
