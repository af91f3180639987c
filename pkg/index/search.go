package index

import (
	"fmt"
	"sort"
)

// DefaultTopK is the number of chunks retrieved per query
const DefaultTopK = 5

// SquaredL2 computes the squared Euclidean distance between two vectors
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Search performs exact nearest-neighbor search on the vector index.
// Returns at most topK results sorted by distance (closest first); equal
// distances keep insertion order.
func Search(index *VectorIndex, queryEmbedding []float32, topK int) ([]Result, error) {
	if len(queryEmbedding) != index.Dimension {
		return nil, fmt.Errorf("%w: query has %d values, index has %d", ErrDimensionMismatch, len(queryEmbedding), index.Dimension)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	results := make([]Result, len(index.Chunks))

	// Compute distance for all chunks
	for i := range index.Chunks {
		results[i] = Result{
			Ordinal:  i,
			Chunk:    index.Chunks[i],
			Distance: SquaredL2(queryEmbedding, index.Embeddings[i]),
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if topK < len(results) {
		results = results[:topK]
	}

	return results, nil
}
