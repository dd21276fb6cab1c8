package config

import (
	"fmt"
	"time"
)

// SignalWeights is the per-signal weight table. The active weights must
// sum to exactly 100; each per-signal contribution is capped by its
// weight so composites stay within [0, 100].
type SignalWeights struct {
	Tags        float64 `mapstructure:"tags" json:"tags"`
	Description float64 `mapstructure:"description" json:"description"`
	Color       float64 `mapstructure:"color" json:"color"`
	Category    float64 `mapstructure:"category" json:"category"`
	Location    float64 `mapstructure:"location" json:"location"`
	Time        float64 `mapstructure:"time" json:"time"`
	Semantic    float64 `mapstructure:"semantic" json:"semantic"`
}

// Sum returns the weight total.
func (w SignalWeights) Sum() float64 {
	return w.Tags + w.Description + w.Color + w.Category + w.Location + w.Time + w.Semantic
}

// Tier maps a closeness ceiling to the points awarded inside it. Distance
// tiers use kilometres, time tiers use hours. Beyond the last tier the
// signal scores zero.
type Tier struct {
	UpTo   float64 `mapstructure:"upTo" json:"upTo"`
	Points float64 `mapstructure:"points" json:"points"`
}

// Prefilter holds the cheap rejection requirements applied before any
// expensive signal is computed.
type Prefilter struct {
	MinCommonTags    int     `mapstructure:"minCommonTags" json:"minCommonTags"`
	MaxDistanceKm    float64 `mapstructure:"maxDistanceKm" json:"maxDistanceKm"`
	MaxTimeDiffHours float64 `mapstructure:"maxTimeDiffHours" json:"maxTimeDiffHours"`
}

// MatchConfig is a versionable configuration snapshot passed explicitly
// into every engine construction and orchestration run. It is never a
// hidden global; deployments supply their own values.
type MatchConfig struct {
	Weights       SignalWeights `mapstructure:"weights" json:"weights"`
	DistanceTiers []Tier        `mapstructure:"distanceTiers" json:"distanceTiers"`
	TimeTiers     []Tier        `mapstructure:"timeTiers" json:"timeTiers"`

	// Text-location fallback points, used when either side lacks
	// coordinates. Both must stay within the location weight.
	LocationExactPoints   float64 `mapstructure:"locationExactPoints" json:"locationExactPoints"`
	LocationOverlapPoints float64 `mapstructure:"locationOverlapPoints" json:"locationOverlapPoints"`

	// Threshold is the composite score a pair needs for admission.
	Threshold float64 `mapstructure:"threshold" json:"threshold"`

	Prefilter Prefilter `mapstructure:"prefilter" json:"prefilter"`

	// EmbedTimeout bounds each embedding provider call.
	EmbedTimeout time.Duration `mapstructure:"embedTimeout" json:"embedTimeout"`
}

// Default returns the shipped tuning. All numbers here are deployment
// configuration, not engine constants; override via the match config file.
func Default() MatchConfig {
	return MatchConfig{
		Weights: SignalWeights{
			Tags:        20,
			Description: 10,
			Color:       10,
			Category:    10,
			Location:    20,
			Time:        10,
			Semantic:    20,
		},
		DistanceTiers: []Tier{
			{UpTo: 0.5, Points: 20},
			{UpTo: 2, Points: 15},
			{UpTo: 5, Points: 10},
			{UpTo: 10, Points: 5},
			{UpTo: 25, Points: 2},
		},
		TimeTiers: []Tier{
			{UpTo: 6, Points: 10},
			{UpTo: 24, Points: 8},
			{UpTo: 72, Points: 5},
			{UpTo: 168, Points: 2},
		},
		LocationExactPoints:   12,
		LocationOverlapPoints: 6,
		Threshold:             55,
		Prefilter: Prefilter{
			MinCommonTags:    1,
			MaxDistanceKm:    50,
			MaxTimeDiffHours: 720,
		},
		EmbedTimeout: 5 * time.Second,
	}
}

// Validate checks the snapshot. Violations are configuration errors that
// must prevent the engine from starting; weights are never silently
// normalized.
func (c MatchConfig) Validate() error {
	for name, w := range map[string]float64{
		"tags":        c.Weights.Tags,
		"description": c.Weights.Description,
		"color":       c.Weights.Color,
		"category":    c.Weights.Category,
		"location":    c.Weights.Location,
		"time":        c.Weights.Time,
		"semantic":    c.Weights.Semantic,
	} {
		if w < 0 {
			return fmt.Errorf("match config: %s weight is negative (%v)", name, w)
		}
	}

	if sum := c.Weights.Sum(); sum != 100 {
		return fmt.Errorf("match config: signal weights sum to %v, must be exactly 100", sum)
	}

	if err := validateTiers("distance", c.DistanceTiers, c.Weights.Location); err != nil {
		return err
	}
	if err := validateTiers("time", c.TimeTiers, c.Weights.Time); err != nil {
		return err
	}

	if c.LocationExactPoints < 0 || c.LocationExactPoints > c.Weights.Location {
		return fmt.Errorf("match config: locationExactPoints %v outside [0, %v]",
			c.LocationExactPoints, c.Weights.Location)
	}
	if c.LocationOverlapPoints < 0 || c.LocationOverlapPoints > c.Weights.Location {
		return fmt.Errorf("match config: locationOverlapPoints %v outside [0, %v]",
			c.LocationOverlapPoints, c.Weights.Location)
	}

	if c.Threshold < 0 || c.Threshold > 100 {
		return fmt.Errorf("match config: threshold %v outside [0, 100]", c.Threshold)
	}
	if c.Prefilter.MinCommonTags < 0 {
		return fmt.Errorf("match config: minCommonTags is negative")
	}
	if c.Prefilter.MaxDistanceKm <= 0 {
		return fmt.Errorf("match config: maxDistanceKm must be positive")
	}
	if c.Prefilter.MaxTimeDiffHours <= 0 {
		return fmt.Errorf("match config: maxTimeDiffHours must be positive")
	}
	if c.EmbedTimeout <= 0 {
		return fmt.Errorf("match config: embedTimeout must be positive")
	}

	return nil
}

func validateTiers(name string, tiers []Tier, ceiling float64) error {
	if len(tiers) == 0 {
		return fmt.Errorf("match config: %s tiers are empty", name)
	}

	prevBound := 0.0
	prevPoints := ceiling + 1
	for i, tier := range tiers {
		if tier.UpTo <= prevBound {
			return fmt.Errorf("match config: %s tier %d bound %v not strictly increasing", name, i, tier.UpTo)
		}
		if tier.Points < 0 || tier.Points > ceiling {
			return fmt.Errorf("match config: %s tier %d points %v outside [0, %v]", name, i, tier.Points, ceiling)
		}
		if tier.Points >= prevPoints {
			return fmt.Errorf("match config: %s tier %d points %v must decrease with distance", name, i, tier.Points)
		}
		prevBound = tier.UpTo
		prevPoints = tier.Points
	}
	return nil
}
