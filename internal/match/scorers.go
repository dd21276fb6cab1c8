package match

import (
	"math"
	"strings"

	"github.com/foundly/foundly/internal/config"
	"github.com/foundly/foundly/internal/geo"
	"github.com/foundly/foundly/internal/item"
	"github.com/foundly/foundly/internal/normalize"
)

// Feature scorers. Each is a pure function returning a value in
// [0, signal weight], never negative and never above the weight.

// TagScore scores tag-set similarity with the overlap coefficient
// |A∩B| / min(|A|,|B|), which rewards a terse report being fully covered
// by a richer one. Empty sets on either side score 0. Rounded to one
// decimal.
func TagScore(a, b []string, weight float64) float64 {
	setA := normalize.TokenSet(normalize.Tags(a))
	setB := normalize.TokenSet(normalize.Tags(b))
	return round1(normalize.OverlapCoefficient(setA, setB) * weight)
}

// DescriptionScore scores free-text similarity over stop-word-filtered
// token sets (tokens of length <= 2 dropped).
func DescriptionScore(a, b string, weight float64) float64 {
	setA := normalize.TokenSet(normalize.Tokenize(a, 3))
	setB := normalize.TokenSet(normalize.Tokenize(b, 3))
	return round1(normalize.OverlapCoefficient(setA, setB) * weight)
}

// ColorScore awards full weight for an exact normalized match, two
// thirds for colors in the same similar-color family, else 0.
func ColorScore(a, b string, weight float64) float64 {
	ca := normalize.Color(a)
	cb := normalize.Color(b)
	if ca == "" || cb == "" {
		return 0.0
	}
	if ca == cb {
		return weight
	}
	if normalize.SameColorGroup(ca, cb) {
		return round1(weight * 2.0 / 3.0)
	}
	return 0.0
}

// CategoryScore awards full weight for a case-insensitive exact match.
func CategoryScore(a, b string, weight float64) float64 {
	ca := strings.ToLower(strings.TrimSpace(a))
	cb := strings.ToLower(strings.TrimSpace(b))
	if ca == "" || cb == "" {
		return 0.0
	}
	if ca == cb {
		return weight
	}
	return 0.0
}

// LocationScore prefers the coordinate path: great-circle distance mapped
// through the configured tiers, a hard 0 beyond the farthest tier. When
// coordinates are missing on either side it falls back to text matching
// with lower ceilings: exact canonical equality, then shared tokens
// longer than three characters. Returns the distance when both sides had
// coordinates so ranking can break ties on it.
func LocationScore(a, b *item.Item, cfg config.MatchConfig, parser normalize.LocationParser) (float64, *float64) {
	if a.HasCoordinates() && b.HasCoordinates() {
		dist := geo.DistanceKm(*a.Lat, *a.Lng, *b.Lat, *b.Lng)
		return tierPoints(cfg.DistanceTiers, dist), &dist
	}

	locA := normalize.Location(a.LocationText)
	locB := normalize.Location(b.LocationText)
	if locA == "" || locB == "" {
		return 0.0, nil
	}
	if locA == locB {
		return cfg.LocationExactPoints, nil
	}

	tokensA := normalize.TokenSet(normalize.ExpandLocationTokens(parser, a.LocationText))
	tokensB := normalize.TokenSet(normalize.ExpandLocationTokens(parser, b.LocationText))
	if normalize.CommonCount(tokensA, tokensB) > 0 {
		return cfg.LocationOverlapPoints, nil
	}
	return 0.0, nil
}

// TimeScore maps the absolute hour difference between event timestamps
// through the configured tiers; 0 beyond the farthest tier or when
// either timestamp is missing. Returns the delta for tie-breaking.
func TimeScore(a, b *item.Item, tiers []config.Tier) (float64, *float64) {
	if a.OccurredAt == nil || b.OccurredAt == nil {
		return 0.0, nil
	}
	delta := geo.HoursBetween(*a.OccurredAt, *b.OccurredAt)
	return tierPoints(tiers, delta), &delta
}

// tierPoints returns the points of the first tier whose ceiling covers
// the value, or 0 beyond the last tier.
func tierPoints(tiers []config.Tier, value float64) float64 {
	for _, tier := range tiers {
		if value <= tier.UpTo {
			return tier.Points
		}
	}
	return 0.0
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
