package embeddings

import (
	"crypto/md5"
	"math"
	"strings"
)

// LocalEmbedder builds deterministic vectors from token hashes. It is not
// a semantic model; it exists for tests and for offline runs where the
// provider is absent but a stable, text-sensitive vector is still useful.
type LocalEmbedder struct {
	dimensions int
}

// NewLocalEmbedder creates a local embedder with the given dimensionality.
func NewLocalEmbedder(dimensions int) *LocalEmbedder {
	return &LocalEmbedder{dimensions: dimensions}
}

// Embed hashes each token into the vector so texts sharing tokens get
// correlated vectors. Output is unit length.
func (e *LocalEmbedder) Embed(text string) []float32 {
	if text == "" {
		return nil
	}

	vector := make([]float32, e.dimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		hash := md5.Sum([]byte(token))
		for i := 0; i < e.dimensions; i++ {
			b := hash[i%len(hash)]
			vector[i] += (float32(b)/255.0)*2.0 - 1.0
		}
	}

	var norm float32
	for _, v := range vector {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vector {
			vector[i] /= norm
		}
	}

	return vector
}
