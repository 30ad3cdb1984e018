// Package embedding provides text-to-vector generation behind a bounded
// cache, plus the cosine similarity used by retrieval and consolidation.
package embedding

import (
	"context"
	"errors"
)

// Common errors for embedding operations.
var (
	// ErrEmptyInput indicates an empty input text.
	ErrEmptyInput = errors.New("input text cannot be empty")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrDimensionMismatch indicates a vector of unexpected dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Provider generates fixed-dimension embedding vectors for text.
//
// Providers are expected to be deterministic for a given input so that
// cached vectors stay valid, and pure so that concurrent duplicate calls
// are harmless.
type Provider interface {
	// Init performs idempotent warm-up (model load, endpoint probe).
	Init(ctx context.Context) error

	// Embed returns the vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed vector dimension for this deployment.
	Dimensions() int
}
