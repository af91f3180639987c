package index

import (
	"errors"
	"fmt"

	"github.com/perbu/labrag/pkg/loader"
)

var (
	// ErrEmptyIndex is returned when an index would hold zero rows
	ErrEmptyIndex = errors.New("index has no rows")

	// ErrDimensionMismatch is returned when vectors disagree on their length
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// VectorIndex holds the in-memory vector index for nearest-neighbor search.
// It is read-only once built; the ordinal position joins chunks and embeddings.
type VectorIndex struct {
	Chunks     []loader.Chunk // Document chunks
	Embeddings [][]float32    // Corresponding embeddings (chunk[i] ↔ embedding[i])
	Dimension  int            // Embedding vector dimension
	ModelInfo  string         // Model name/version used
}

// Result represents a single retrieval hit
type Result struct {
	Ordinal  int // Position of the chunk in the index
	Chunk    loader.Chunk
	Distance float32 // Squared L2 distance to the query
}

// Build creates a VectorIndex from chunks and their embeddings
func Build(chunks []loader.Chunk, embeddings [][]float32, modelInfo string) (*VectorIndex, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(chunks) != len(embeddings) {
		return nil, fmt.Errorf("chunks and embeddings length mismatch: %d != %d", len(chunks), len(embeddings))
	}

	dim := len(embeddings[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: embedding 0 is empty", ErrDimensionMismatch)
	}
	for i, e := range embeddings {
		if len(e) != dim {
			return nil, fmt.Errorf("%w: embedding %d has %d values, want %d", ErrDimensionMismatch, i, len(e), dim)
		}
	}

	return &VectorIndex{
		Chunks:     chunks,
		Embeddings: embeddings,
		Dimension:  dim,
		ModelInfo:  modelInfo,
	}, nil
}

// Len returns the number of rows in the index
func (idx *VectorIndex) Len() int {
	return len(idx.Chunks)
}
