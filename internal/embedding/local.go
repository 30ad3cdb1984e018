package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// DefaultDimensions matches the bge-small-en-v1.5 / all-MiniLM-L6-v2
// family used by the hosted providers.
const DefaultDimensions = 384

// LocalProvider generates deterministic embeddings from a text hash.
//
// It requires no model runtime or network access, which makes it the
// default for local installs and for tests. Vectors are unit-normalized
// so identical texts always have cosine similarity 1.0, but unrelated
// texts are not semantically close; deployments that need real semantic
// recall should configure the TEI provider instead.
type LocalProvider struct {
	dimensions int
}

// NewLocalProvider creates a local hash-based provider.
// A non-positive dimensions falls back to DefaultDimensions.
func NewLocalProvider(dimensions int) *LocalProvider {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &LocalProvider{dimensions: dimensions}
}

// Init is a no-op; the local provider has nothing to warm up.
func (p *LocalProvider) Init(ctx context.Context) error {
	return nil
}

// Embed creates a deterministic unit vector from the text hash.
func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	h := fnv.New64a()
	h.Write([]byte(text))

	// LCG seeded by the hash gives a stable pseudo-random vector.
	seed := h.Sum64()
	vec := make([]float32, p.dimensions)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	normalize(vec)
	return vec, nil
}

// Dimensions returns the embedding size.
func (p *LocalProvider) Dimensions() int {
	return p.dimensions
}

// normalize scales the vector to unit length in place.
func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
}

var _ Provider = (*LocalProvider)(nil)
