package match

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/foundly/foundly/internal/config"
	"github.com/foundly/foundly/internal/embeddings"
	"github.com/foundly/foundly/internal/geo"
	"github.com/foundly/foundly/internal/item"
	"github.com/foundly/foundly/internal/normalize"
)

// ConfigError marks a fatal, non-retryable configuration problem. It
// prevents the engine from starting.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// Engine computes ScoreBreakdowns for item pairs and decides admission.
// It is deterministic given its inputs; the config snapshot is fixed at
// construction.
type Engine struct {
	cfg      config.MatchConfig
	embedder embeddings.Embedder
	parser   normalize.LocationParser
	log      *logrus.Logger
}

// NewEngine validates the config snapshot and fails fast on violation.
// embedder and parser may be nil; the affected signals then score 0.
func NewEngine(cfg config.MatchConfig, embedder embeddings.Embedder, parser normalize.LocationParser, log *logrus.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}
	return &Engine{cfg: cfg, embedder: embedder, parser: parser, log: log}, nil
}

// Config returns the snapshot the engine was built with.
func (e *Engine) Config() config.MatchConfig {
	return e.cfg
}

// Prefilter applies the cheap rejection tests before any expensive
// signal. It returns false when the pair is obviously irrelevant:
// too far apart, too far apart in time, or lacking the tag-overlap floor
// with no strong location/time signal to compensate. This keeps the
// per-item cost roughly linear in pool size by skipping embedding calls.
func (e *Engine) Prefilter(a, b *item.Item) bool {
	pf := e.cfg.Prefilter

	distanceOK := false
	if a.HasCoordinates() && b.HasCoordinates() {
		dist := geo.DistanceKm(*a.Lat, *a.Lng, *b.Lat, *b.Lng)
		if dist > pf.MaxDistanceKm {
			return false
		}
		distanceOK = true
	}

	timeOK := false
	if a.OccurredAt != nil && b.OccurredAt != nil {
		delta := geo.HoursBetween(*a.OccurredAt, *b.OccurredAt)
		if delta > pf.MaxTimeDiffHours {
			return false
		}
		timeOK = true
	}

	common := normalize.CommonCount(
		normalize.TokenSet(normalize.Tags(a.Tags)),
		normalize.TokenSet(normalize.Tags(b.Tags)))
	if common < pf.MinCommonTags && !distanceOK && !timeOK {
		return false
	}

	return true
}

// ScorePair computes the full breakdown for one surviving pair. The bool
// result reports admission (composite >= threshold). A failure inside
// any single scorer contributes 0 for that signal and never aborts the
// pair or the batch.
func (e *Engine) ScorePair(a, b *item.Item) (Candidate, bool) {
	w := e.cfg.Weights
	perSignal := make(map[string]float64, len(Signals))

	perSignal[SignalTags] = e.safeScore(SignalTags, a, b, func() float64 {
		return TagScore(a.Tags, b.Tags, w.Tags)
	})
	perSignal[SignalDescription] = e.safeScore(SignalDescription, a, b, func() float64 {
		return DescriptionScore(a.Description, b.Description, w.Description)
	})
	perSignal[SignalColor] = e.safeScore(SignalColor, a, b, func() float64 {
		return ColorScore(a.Color, b.Color, w.Color)
	})
	perSignal[SignalCategory] = e.safeScore(SignalCategory, a, b, func() float64 {
		return CategoryScore(a.Category, b.Category, w.Category)
	})

	var distance, timeDelta *float64
	perSignal[SignalLocation] = e.safeScore(SignalLocation, a, b, func() float64 {
		score, dist := LocationScore(a, b, e.cfg, e.parser)
		distance = dist
		return score
	})
	perSignal[SignalTime] = e.safeScore(SignalTime, a, b, func() float64 {
		score, delta := TimeScore(a, b, e.cfg.TimeTiers)
		timeDelta = delta
		return score
	})
	perSignal[SignalSemantic] = e.safeScore(SignalSemantic, a, b, func() float64 {
		return e.semanticScore(a, b)
	})

	composite := 0.0
	for _, v := range perSignal {
		composite += v
	}

	cand := Candidate{
		Item: b,
		Breakdown: ScoreBreakdown{
			PerSignal: perSignal,
			Composite: composite,
		},
		TimeDeltaHours: timeDelta,
		DistanceKm:     distance,
	}
	return cand, composite >= e.cfg.Threshold
}

// ScorePool pre-filters, scores and ranks a candidate pool against the
// trigger item, returning only admitted candidates in deterministic
// order.
func (e *Engine) ScorePool(trigger *item.Item, pool []*item.Item) []Candidate {
	var admitted []Candidate
	for _, cand := range pool {
		if !e.Prefilter(trigger, cand) {
			continue
		}
		scored, ok := e.ScorePair(trigger, cand)
		if ok {
			admitted = append(admitted, scored)
		}
	}

	Rank(admitted)
	return admitted
}

// semanticScore embeds both items' canonical text and scales the cosine
// similarity into the semantic weight. An empty vector on either side
// (no provider, provider failure, no text) means no semantic signal.
func (e *Engine) semanticScore(a, b *item.Item) float64 {
	if e.embedder == nil {
		return 0.0
	}

	vecA := e.embedder.Embed(embeddings.CanonicalText(a, nil))
	if len(vecA) == 0 {
		return 0.0
	}
	vecB := e.embedder.Embed(embeddings.CanonicalText(b, nil))
	if len(vecB) == 0 {
		return 0.0
	}

	return embeddings.Cosine(vecA, vecB) * e.cfg.Weights.Semantic
}

// safeScore runs one scorer, recovering a panic into a 0 contribution.
// The failure is logged with both item IDs and the signal name so
// scoring anomalies stay diagnosable.
func (e *Engine) safeScore(signal string, a, b *item.Item, fn func() float64) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			score = 0.0
			e.log.WithFields(logrus.Fields{
				"module": "match",
				"signal": signal,
				"itemA":  a.ID,
				"itemB":  b.ID,
			}).Warn(fmt.Sprintf("signal computation failed: %v", r))
		}
	}()

	score = fn()
	if score < 0 {
		score = 0.0
	}
	return score
}

// Rank orders candidates deterministically: composite descending, ties
// by smaller time delta, then smaller distance, then candidate creation
// time, then ID. Two runs over an unchanged pool always produce the
// same order.
func Rank(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Breakdown.Composite != b.Breakdown.Composite {
			return a.Breakdown.Composite > b.Breakdown.Composite
		}
		if ta, tb := derefOrInf(a.TimeDeltaHours), derefOrInf(b.TimeDeltaHours); ta != tb {
			return ta < tb
		}
		if da, db := derefOrInf(a.DistanceKm), derefOrInf(b.DistanceKm); da != db {
			return da < db
		}
		if !a.Item.CreatedAt.Equal(b.Item.CreatedAt) {
			return a.Item.CreatedAt.Before(b.Item.CreatedAt)
		}
		return a.Item.ID < b.Item.ID
	})
}

func derefOrInf(v *float64) float64 {
	if v == nil {
		return math.Inf(1)
	}
	return *v
}
