package embedder

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

var (
	// ErrEmbedding marks a failed embedding call. It is fatal for the invocation.
	ErrEmbedding = errors.New("embedding failed")

	// ErrRateLimited is returned once rate-limit retries are exhausted.
	ErrRateLimited = errors.New("embedding rate limited")
)

// Embedder interface for generating embeddings
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelInfo() string
}

// EmbedAll embeds texts one after another, in order, stopping at the first error.
// progressFn is called with (completed, total) after each embedding.
func EmbedAll(ctx context.Context, e Embedder, texts []string, progressFn func(int, int)) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
		if progressFn != nil {
			progressFn(i+1, len(texts))
		}
	}
	return embeddings, nil
}

// HashEmbedder is a deterministic, offline embedder based on token hashing.
// It needs no credentials and is meant for dry runs and tests.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hashing embedder of the given dimension
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashEmbedder{dim: dimension}
}

// Embed maps every lower-cased token onto a bucket and L2 normalizes the counts
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if len(text) == 0 {
		return nil, fmt.Errorf("%w: cannot embed empty text", ErrEmbedding)
	}

	vec := make([]float32, e.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%uint32(e.dim)]++
	}

	l2normalize(vec)
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return EmbedAll(ctx, e, texts, nil)
}

// Dimension returns the embedding dimension
func (e *HashEmbedder) Dimension() int {
	return e.dim
}

// ModelInfo returns model information
func (e *HashEmbedder) ModelInfo() string {
	return fmt.Sprintf("hash-embedder-%d", e.dim)
}

// l2normalize normalizes a vector to unit length
func l2normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}
