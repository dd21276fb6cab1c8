package embeddings

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/foundly/foundly/internal/item"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite clamps to zero", []float32{1, 0}, []float32{-1, 0}, 0.0},
		{"empty left", nil, []float32{1}, 0.0},
		{"empty right", []float32{1}, nil, 0.0},
		{"dimension mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0.0},
		{"zero magnitude", []float32{0, 0}, []float32{1, 1}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Cosine() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanonicalText(t *testing.T) {
	it := &item.Item{
		Name:        "Wallet",
		Description: "Black leather wallet",
		Tags:        []string{"wallet", "leather"},
		Color:       "black",
	}

	got := CanonicalText(it, nil)
	want := "item: wallet. description: black leather wallet. tags: wallet, leather. color: black."
	if got != want {
		t.Errorf("CanonicalText() = %q, want %q", got, want)
	}

	withLabels := CanonicalText(it, []string{"handbag"})
	if withLabels != want+" seen as: handbag." {
		t.Errorf("CanonicalText() with labels = %q", withLabels)
	}
}

func TestClientEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"embedding": [0.1, 0.2, 0.3]}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL}, testLogger())

	vec := client.Embed("black wallet")
	if len(vec) != 3 {
		t.Fatalf("expected 3-dim vector, got %v", vec)
	}
}

func TestClientDegradesToEmptyVector(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer failing.Close()

	tests := []struct {
		name   string
		client *Client
		text   string
	}{
		{"empty text", NewClient(ClientConfig{BaseURL: failing.URL}, testLogger()), ""},
		{"unconfigured provider", NewClient(ClientConfig{}, testLogger()), "wallet"},
		{"provider error", NewClient(ClientConfig{BaseURL: failing.URL}, testLogger()), "wallet"},
		{"unreachable provider", NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}, testLogger()), "wallet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if vec := tt.client.Embed(tt.text); len(vec) != 0 {
				t.Errorf("expected empty vector, got %v", vec)
			}
		})
	}
}

func TestLocalEmbedder(t *testing.T) {
	e := NewLocalEmbedder(64)

	a := e.Embed("black leather wallet")
	b := e.Embed("black leather wallet")
	if Cosine(a, b) < 0.999 {
		t.Error("identical texts should embed identically")
	}

	if vec := e.Embed(""); len(vec) != 0 {
		t.Errorf("empty text should yield empty vector, got %d dims", len(vec))
	}

	c := e.Embed("black wallet")
	if sim := Cosine(a, c); sim <= 0 {
		t.Errorf("overlapping texts should correlate, got %v", sim)
	}
}
