package vectordb

import (
	"context"
	"sync"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
)

// MemoryIndex is a non-durable ports.VectorIndex for tests and ephemeral runs.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries []entities.IndexEntry // insertion order
	pos     map[string]int        // entry ID -> position in entries
	dim     int
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{pos: make(map[string]int)}
}

// Upsert replaces entries in place, so a rewritten entry keeps its original
// insertion position.
func (s *MemoryIndex) Upsert(_ context.Context, entries []entities.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := batchDimension("vectordb.Memory.Upsert", entries, s.dim)
	if err != nil {
		return err
	}
	for _, e := range entries {
		e.Vector = append([]float32(nil), e.Vector...)
		if i, ok := s.pos[e.ID]; ok {
			s.entries[i] = e
			continue
		}
		s.pos[e.ID] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	if len(entries) > 0 {
		s.dim = dim
	}
	return nil
}

func (s *MemoryIndex) Query(_ context.Context, vector []float32, topK int) (entities.RetrievalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := validateQuery("vectordb.Memory.Query", vector, topK, s.dim); err != nil {
		return nil, err
	}
	candidates := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		candidates = append(candidates, scored{chunk: e.Chunk, score: cosineSimilarity(vector, e.Vector)})
	}
	return rank(candidates, topK), nil
}

func (s *MemoryIndex) Delete(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.Chunk.DocumentID != documentID {
			kept = append(kept, e)
		}
	}
	clear(s.entries[len(kept):])
	s.entries = kept
	s.pos = make(map[string]int, len(kept))
	for i, e := range kept {
		s.pos[e.ID] = i
	}
	return nil
}

func (s *MemoryIndex) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	s.pos = make(map[string]int)
	s.dim = 0
	return nil
}

func (s *MemoryIndex) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryIndex) Close() error { return nil }
