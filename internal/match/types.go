package match

import (
	"github.com/foundly/foundly/internal/item"
)

// Signal names used as ScoreBreakdown keys.
const (
	SignalTags        = "tags"
	SignalDescription = "description"
	SignalColor       = "color"
	SignalCategory    = "category"
	SignalLocation    = "location"
	SignalTime        = "time"
	SignalSemantic    = "semantic"
)

// Signals lists every signal in breakdown order.
var Signals = []string{
	SignalTags, SignalDescription, SignalColor, SignalCategory,
	SignalLocation, SignalTime, SignalSemantic,
}

// ScoreBreakdown is the per-signal explanation of one scored pair.
// Composite always equals the exact sum of PerSignal entries, and each
// entry is bounded by its configured weight.
type ScoreBreakdown struct {
	PerSignal map[string]float64 `json:"perSignal"`
	Composite float64            `json:"composite"`
}

// Candidate is an opposite-type item scored against a trigger item,
// carrying the measurements the ranking tie-break needs.
type Candidate struct {
	Item      *item.Item
	Breakdown ScoreBreakdown

	// TimeDeltaHours and DistanceKm are nil when either side lacks the
	// underlying field.
	TimeDeltaHours *float64
	DistanceKm     *float64
}
