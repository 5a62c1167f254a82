package usecases

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/chunker"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
)

// DefaultIngestConcurrency bounds how many documents are processed at once.
const DefaultIngestConcurrency = 4

// IngestUseCase runs the write path: chunk, embed, upsert.
type IngestUseCase struct {
	chunker     *chunker.Chunker
	embedder    ports.EmbeddingService
	index       ports.VectorIndex
	logger      *zap.Logger
	recorder    Recorder
	concurrency int
}

// NewIngestUseCase creates an IngestUseCase with injected dependencies.
func NewIngestUseCase(
	c *chunker.Chunker,
	embedder ports.EmbeddingService,
	index ports.VectorIndex,
	logger *zap.Logger,
	recorder Recorder,
) *IngestUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestUseCase{
		chunker:     c,
		embedder:    embedder,
		index:       index,
		logger:      logger,
		recorder:    orNop(recorder),
		concurrency: DefaultIngestConcurrency,
	}
}

// WithConcurrency sets the number of documents processed in parallel.
func (uc *IngestUseCase) WithConcurrency(n int) *IngestUseCase {
	if n > 0 {
		uc.concurrency = n
	}
	return uc
}

// Ingest chunks, embeds and stores one document. All of its chunks are
// upserted in a single call, so a document is either fully indexed or not at all.
func (uc *IngestUseCase) Ingest(ctx context.Context, doc *entities.Document) (int, error) {
	n, err := uc.ingest(ctx, doc)
	uc.recorder.DocumentIngested(err == nil, n)
	return n, err
}

func (uc *IngestUseCase) ingest(ctx context.Context, doc *entities.Document) (int, error) {
	chunks, err := uc.chunker.Chunk(doc)
	if err != nil {
		return 0, err
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}

	vectors, err := uc.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, errs.New(errs.CodeEmbeddingService, "usecases.Ingest",
			"got %d embeddings for %d chunks", len(vectors), len(chunks))
	}

	entries := make([]entities.IndexEntry, len(chunks))
	for i := range chunks {
		entries[i] = entities.IndexEntry{
			ID:     uuid.NewString(),
			Chunk:  chunks[i],
			Vector: vectors[i],
		}
	}

	if err := uc.index.Upsert(ctx, entries); err != nil {
		return 0, err
	}

	uc.logger.Info("document indexed",
		zap.String("document_id", doc.ID),
		zap.String("name", doc.Name),
		zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// IngestBatch ingests documents concurrently. A failing document does not
// stop the others; every document gets a report, in input order.
func (uc *IngestUseCase) IngestBatch(ctx context.Context, docs []*entities.Document) []entities.IngestReport {
	reports := make([]entities.IngestReport, len(docs))

	var g errgroup.Group
	g.SetLimit(uc.concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			reports[i] = uc.report(ctx, doc)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

// IngestSources loads and ingests each source (path or URL). Load failures
// are reported per source.
func (uc *IngestUseCase) IngestSources(ctx context.Context, loader ports.DocumentLoader, sources []string) []entities.IngestReport {
	reports := make([]entities.IngestReport, len(sources))

	var g errgroup.Group
	g.SetLimit(uc.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			doc, err := loader.Load(ctx, src)
			if err != nil {
				uc.recorder.DocumentIngested(false, 0)
				uc.logger.Warn("load failed", zap.String("source", src), zap.Error(err))
				reports[i] = entities.IngestReport{Name: src, Err: err}
				return nil
			}
			reports[i] = uc.report(ctx, doc)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

func (uc *IngestUseCase) report(ctx context.Context, doc *entities.Document) entities.IngestReport {
	if err := ctx.Err(); err != nil {
		return entities.IngestReport{DocumentID: doc.ID, Name: doc.Name, Err: err}
	}
	n, err := uc.Ingest(ctx, doc)
	if err != nil {
		uc.logger.Warn("ingest failed",
			zap.String("document_id", doc.ID),
			zap.String("name", doc.Name),
			zap.Error(err))
	}
	return entities.IngestReport{DocumentID: doc.ID, Name: doc.Name, Chunks: n, Err: err}
}

// Replace removes a document's previous entries and ingests it again.
func (uc *IngestUseCase) Replace(ctx context.Context, doc *entities.Document) (int, error) {
	if err := uc.index.Delete(ctx, doc.ID); err != nil {
		return 0, fmt.Errorf("removing previous version of %s: %w", doc.Name, err)
	}
	return uc.Ingest(ctx, doc)
}

// Delete removes a document from the index.
func (uc *IngestUseCase) Delete(ctx context.Context, documentID string) error {
	if documentID == "" {
		return errs.InvalidArgument("usecases.Delete", "document id is required")
	}
	return uc.index.Delete(ctx, documentID)
}

// Reset clears the whole knowledge base. Irreversible.
func (uc *IngestUseCase) Reset(ctx context.Context) error {
	if err := uc.index.DeleteAll(ctx); err != nil {
		return err
	}
	uc.logger.Info("index cleared")
	return nil
}

// Count returns the number of indexed chunks.
func (uc *IngestUseCase) Count(ctx context.Context) (int, error) {
	return uc.index.Count(ctx)
}
