// Package vectordb provides vector index adapters implementing ports.VectorIndex.
package vectordb

import (
	"math"
	"sort"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
)

// cosineSimilarity calculates cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// scored is a candidate hit. Candidates must be collected in insertion order.
type scored struct {
	chunk entities.Chunk
	score float64
}

// rank orders candidates by descending score, keeping insertion order among
// equal scores, and truncates to topK.
func rank(candidates []scored, topK int) entities.RetrievalResult {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	out := make(entities.RetrievalResult, len(candidates))
	for i, c := range candidates {
		out[i] = entities.QueryResult{Chunk: c.chunk, Score: c.score, SourceDoc: c.chunk.SourceName}
	}
	return out
}

func validateQuery(op string, vector []float32, topK, dim int) error {
	if topK < 1 {
		return errs.InvalidArgument(op, "top_k must be >= 1, got %d", topK)
	}
	if len(vector) == 0 {
		return errs.InvalidArgument(op, "empty query vector")
	}
	if dim > 0 && len(vector) != dim {
		return errs.DimensionMismatch(op, dim, len(vector))
	}
	return nil
}

// batchDimension checks that every entry shares one dimension, and that it
// matches the established dim when dim > 0. Returns the batch dimension.
func batchDimension(op string, entries []entities.IndexEntry, dim int) (int, error) {
	want := dim
	for _, e := range entries {
		if len(e.Vector) == 0 {
			return 0, errs.InvalidArgument(op, "entry %s has an empty vector", e.ID)
		}
		if e.ID == "" {
			return 0, errs.InvalidArgument(op, "entry without id")
		}
		if want == 0 {
			want = len(e.Vector)
		}
		if len(e.Vector) != want {
			return 0, errs.DimensionMismatch(op, want, len(e.Vector))
		}
	}
	return want, nil
}
