package normalize

import (
	"math"
	"reflect"
	"testing"
)

func TestTags(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"lowercases and trims", []string{" Wallet ", "LEATHER"}, []string{"wallet", "leather"}},
		{"dedupes", []string{"wallet", "Wallet", "wallet "}, []string{"wallet"}},
		{"drops empties", []string{"", "  ", "keys"}, []string{"keys"}},
		{"nil input", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Tags(tt.input); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tags(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSameColorGroup(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"black", "charcoal", true},
		{"navy", "teal", true},
		{"black", "navy", false},
		{"black", "", false},
		{"magenta", "rose", true},
		{"brown", "tan", true},
	}

	for _, tt := range tests {
		if got := SameColorGroup(tt.a, tt.b); got != tt.want {
			t.Errorf("SameColorGroup(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("The black leather wallet, lost near the library!", 3)
	want := []string{"black", "leather", "wallet", "library"}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize() = %v, want %v", got, want)
	}
}

func TestOverlapCoefficient(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"a", "b"}, []string{"a", "b"}, 1.0},
		{"disjoint", []string{"a", "b"}, []string{"c", "d"}, 0.0},
		{"smaller set covered", []string{"wallet"}, []string{"wallet", "leather", "black"}, 1.0},
		{"half of smaller set", []string{"wallet", "keys"}, []string{"wallet", "phone", "card"}, 0.5},
		{"empty side", nil, []string{"a"}, 0.0},
		{"both empty", nil, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OverlapCoefficient(TokenSet(tt.a), TokenSet(tt.b))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("OverlapCoefficient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOverlapCoefficientSymmetry(t *testing.T) {
	a := TokenSet([]string{"wallet", "black", "leather"})
	b := TokenSet([]string{"wallet", "card"})

	if OverlapCoefficient(a, b) != OverlapCoefficient(b, a) {
		t.Error("overlap coefficient is not symmetric")
	}
}

func TestLocation(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Central Library, Main St.", "central library main st"},
		{"  CENTRAL  library  ", "central library"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Location(tt.input); got != tt.want {
			t.Errorf("Location(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLocationTokens(t *testing.T) {
	got := LocationTokens("near the Main Street fountain")
	want := []string{"main", "street", "fountain"}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("LocationTokens() = %v, want %v", got, want)
	}
}

type stubParser struct {
	components map[string]string
}

func (s stubParser) Parse(string) map[string]string { return s.components }

func TestExpandLocationTokens(t *testing.T) {
	parser := stubParser{components: map[string]string{
		"road": "fifth avenue",
		"city": "springfield",
	}}

	got := ExpandLocationTokens(parser, "library on 5th")
	set := TokenSet(got)

	for _, want := range []string{"library", "fifth", "avenue", "springfield"} {
		if !set[want] {
			t.Errorf("ExpandLocationTokens() missing %q, got %v", want, got)
		}
	}

	plain := ExpandLocationTokens(nil, "main street fountain")
	if !reflect.DeepEqual(plain, []string{"main", "street", "fountain"}) {
		t.Errorf("nil parser should return plain tokens, got %v", plain)
	}
}
