// Package embeddings turns item text into fixed-length vectors via an
// external provider and compares them with cosine similarity.
//
// Failure policy: a broken or unconfigured provider yields an empty
// vector, never an error. Callers treat an empty vector as "no semantic
// signal" and score that component as zero, so one bad external call
// cannot abort a whole match pass.
package embeddings

import (
	"fmt"
	"math"
	"strings"

	"github.com/foundly/foundly/internal/item"
)

// Embedder produces a fixed-length vector for a text, or an empty slice
// when no embedding is available.
type Embedder interface {
	Embed(text string) []float32
}

// CanonicalText builds the embedding input for an item, optionally
// enriched with image-derived labels from the detection sidecar.
func CanonicalText(it *item.Item, imageLabels []string) string {
	text := fmt.Sprintf("item: %s. description: %s. tags: %s. color: %s.",
		it.Name, it.Description, strings.Join(it.Tags, ", "), it.Color)
	if len(imageLabels) > 0 {
		text += fmt.Sprintf(" seen as: %s.", strings.Join(imageLabels, ", "))
	}
	return strings.ToLower(text)
}

// Cosine computes cosine similarity between two vectors, clamped to
// [0, 1]. Zero-magnitude or dimension-mismatched inputs score 0; the
// clamp keeps small negative noise from producing invalid scores.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0.0
	}
	if sim > 1 {
		return 1.0
	}
	return sim
}
