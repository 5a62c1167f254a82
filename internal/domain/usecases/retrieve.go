package usecases

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
)

// DefaultTopK is the number of passages retrieved per question.
const DefaultTopK = 5

// Retriever embeds a question and queries the index.
type Retriever struct {
	embedder ports.EmbeddingService
	index    ports.VectorIndex
	logger   *zap.Logger
	recorder Recorder
}

func NewRetriever(embedder ports.EmbeddingService, index ports.VectorIndex, logger *zap.Logger, recorder Recorder) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		logger:   logger,
		recorder: orNop(recorder),
	}
}

// Retrieve returns up to topK passages, best first. An empty index yields an
// empty result without calling the embedding service.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) (entities.RetrievalResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errs.InvalidArgument("usecases.Retrieve", "question is empty")
	}
	if topK < 1 {
		return nil, errs.InvalidArgument("usecases.Retrieve", "top_k must be >= 1, got %d", topK)
	}

	start := time.Now()
	defer func() { r.recorder.ObserveQuery(time.Since(start)) }()

	n, err := r.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		r.logger.Debug("index empty, skipping retrieval")
		return entities.RetrievalResult{}, nil
	}

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	result, err := r.index.Query(ctx, vector, topK)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("retrieved passages", zap.Int("hits", len(result)), zap.Int("top_k", topK))
	return result, nil
}
