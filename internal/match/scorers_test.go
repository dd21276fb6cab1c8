package match

import (
	"math"
	"testing"
	"time"

	"github.com/foundly/foundly/internal/config"
	"github.com/foundly/foundly/internal/item"
)

func TestTagScore(t *testing.T) {
	tests := []struct {
		name   string
		a, b   []string
		weight float64
		want   float64
	}{
		{"identical sets score full weight", []string{"wallet", "leather"}, []string{"wallet", "leather"}, 20, 20},
		{"case and whitespace insensitive", []string{" Wallet "}, []string{"wallet"}, 20, 20},
		{"smaller set fully covered", []string{"wallet"}, []string{"wallet", "leather", "black"}, 20, 20},
		{"half overlap", []string{"wallet", "keys"}, []string{"wallet", "phone"}, 20, 10},
		{"no overlap", []string{"wallet"}, []string{"umbrella"}, 20, 0},
		{"empty side scores zero", nil, []string{"wallet"}, 20, 0},
		{"both empty score zero", nil, nil, 20, 0},
		{"rounds to one decimal", []string{"a", "b", "c"}, []string{"a", "x", "y"}, 20, 6.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TagScore(tt.a, tt.b, tt.weight); got != tt.want {
				t.Errorf("TagScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTagScoreSymmetry(t *testing.T) {
	a := []string{"wallet", "leather", "black"}
	b := []string{"wallet", "card"}

	if TagScore(a, b, 20) != TagScore(b, a, 20) {
		t.Error("tag score is not symmetric")
	}
}

func TestDescriptionScore(t *testing.T) {
	tests := []struct {
		name   string
		a, b   string
		weight float64
		want   float64
	}{
		{"identical descriptions", "black leather wallet", "black leather wallet", 10, 10},
		{"stop words ignored", "the wallet was black", "black wallet", 10, 10},
		{"short tokens dropped", "id in it", "id on it", 10, 0},
		{"no tokens either side", "", "black wallet", 10, 0},
		{"disjoint", "red umbrella", "silver laptop", 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DescriptionScore(tt.a, tt.b, tt.weight); got != tt.want {
				t.Errorf("DescriptionScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestColorScore(t *testing.T) {
	tests := []struct {
		name   string
		a, b   string
		weight float64
		want   float64
	}{
		{"exact match", "black", "black", 10, 10},
		{"case insensitive", "Black", " BLACK ", 10, 10},
		{"same family", "black", "charcoal", 10, 6.7},
		{"different families", "black", "red", 10, 0},
		{"missing side", "", "black", 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ColorScore(tt.a, tt.b, tt.weight); got != tt.want {
				t.Errorf("ColorScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCategoryScore(t *testing.T) {
	if got := CategoryScore("Accessories", "accessories", 10); got != 10 {
		t.Errorf("CategoryScore() = %v, want 10", got)
	}
	if got := CategoryScore("accessories", "electronics", 10); got != 0 {
		t.Errorf("CategoryScore() = %v, want 0", got)
	}
	if got := CategoryScore("", "", 10); got != 0 {
		t.Errorf("empty categories must score 0, got %v", got)
	}
}

func coords(lat, lng float64) (*float64, *float64) {
	return &lat, &lng
}

func TestLocationScoreCoordinatePath(t *testing.T) {
	cfg := config.Default()

	lat1, lng1 := coords(40.7580, -73.9855)
	a := &item.Item{Lat: lat1, Lng: lng1}

	tests := []struct {
		name     string
		lat, lng float64
		want     float64
	}{
		{"within first tier", 40.7616, -73.9857, 20}, // ~400m
		{"second tier", 40.7700, -73.9700, 15},       // ~1.8km
		{"beyond all tiers scores zero", 41.2, -74.5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lng := coords(tt.lat, tt.lng)
			b := &item.Item{Lat: lat, Lng: lng}

			got, dist := LocationScore(a, b, cfg, nil)
			if got != tt.want {
				t.Errorf("LocationScore() = %v, want %v", got, tt.want)
			}
			if dist == nil {
				t.Fatal("coordinate path must report the distance")
			}

			// Symmetric regardless of measurement direction.
			rev, _ := LocationScore(b, a, cfg, nil)
			if rev != got {
				t.Errorf("location score not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestLocationScoreTextFallback(t *testing.T) {
	cfg := config.Default()

	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"exact normalized equality", "Central Library, Main St", "central library main st", cfg.LocationExactPoints},
		{"token overlap", "Central Library entrance", "outside the library doors", cfg.LocationOverlapPoints},
		{"no overlap", "Main Street", "City Park", 0},
		{"missing side", "", "Main Street", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &item.Item{LocationText: tt.a}
			b := &item.Item{LocationText: tt.b}

			got, dist := LocationScore(a, b, cfg, nil)
			if got != tt.want {
				t.Errorf("LocationScore() = %v, want %v", got, tt.want)
			}
			if dist != nil {
				t.Error("text fallback must not report a distance")
			}
		})
	}
}

func TestTimeScore(t *testing.T) {
	cfg := config.Default()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		delta time.Duration
		want  float64
	}{
		{"within six hours", 2 * time.Hour, 10},
		{"within a day", 20 * time.Hour, 8},
		{"within three days", 50 * time.Hour, 5},
		{"within a week", 150 * time.Hour, 2},
		{"beyond the last tier", 400 * time.Hour, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occurredA := base
			occurredB := base.Add(tt.delta)
			a := &item.Item{OccurredAt: &occurredA}
			b := &item.Item{OccurredAt: &occurredB}

			got, delta := TimeScore(a, b, cfg.TimeTiers)
			if got != tt.want {
				t.Errorf("TimeScore() = %v, want %v", got, tt.want)
			}
			if delta == nil || math.Abs(*delta-tt.delta.Hours()) > 1e-9 {
				t.Errorf("delta = %v, want %v", delta, tt.delta.Hours())
			}
		})
	}

	t.Run("missing timestamp", func(t *testing.T) {
		a := &item.Item{OccurredAt: &base}
		b := &item.Item{}
		if got, delta := TimeScore(a, b, cfg.TimeTiers); got != 0 || delta != nil {
			t.Errorf("TimeScore() = %v, %v; want 0, nil", got, delta)
		}
	})
}
