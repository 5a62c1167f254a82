package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
)

// QdrantConfig addresses a Qdrant collection over gRPC.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// QdrantIndex implements ports.VectorIndex on a Qdrant collection. The
// collection is created on first upsert with that batch's dimension.
type QdrantIndex struct {
	mu         sync.RWMutex
	client     *qdrant.Client
	collection string
	dim        int
	seq        atomic.Int64
	logger     *zap.Logger
}

func NewQdrantIndex(ctx context.Context, cfg QdrantConfig, logger *zap.Logger) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "knowledge_vault"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	q := &QdrantIndex{client: client, collection: cfg.Collection, logger: logger}
	q.seq.Store(time.Now().UnixNano())
	if err := q.loadDimension(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

func (q *QdrantIndex) loadDimension(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return errs.Wrap(errs.CodeIndexIO, "vectordb.Qdrant.Open", err)
	}
	if !exists {
		return nil
	}
	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return errs.Wrap(errs.CodeIndexIO, "vectordb.Qdrant.Open", err)
	}
	q.dim = int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, entries []entities.IndexEntry) error {
	const op = "vectordb.Qdrant.Upsert"
	if len(entries) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	dim, err := batchDimension(op, entries, q.dim)
	if err != nil {
		return err
	}
	if q.dim == 0 {
		err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return errs.Wrap(errs.CodeIndexIO, op, fmt.Errorf("creating collection: %w", err))
		}
		q.dim = dim
		q.logger.Info("created collection", zap.String("collection", q.collection), zap.Int("dimension", dim))
	}

	points := make([]*qdrant.PointStruct, len(entries))
	for i, e := range entries {
		payload, err := pointPayload(e.Chunk, q.seq.Add(1))
		if err != nil {
			return errs.Wrap(errs.CodeIndexIO, op, err)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(e.ID),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: payload,
		}
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	return errs.Wrap(errs.CodeIndexIO, op, err)
}

// Query asks Qdrant for extra candidates so equal scores at the cut can be
// re-ordered by insertion sequence.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, topK int) (entities.RetrievalResult, error) {
	const op = "vectordb.Qdrant.Query"

	q.mu.RLock()
	defer q.mu.RUnlock()

	if err := validateQuery(op, vector, topK, q.dim); err != nil {
		return nil, err
	}
	if q.dim == 0 {
		return entities.RetrievalResult{}, nil
	}

	limit := uint64(topK * 2)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, errs.Wrap(errs.CodeIndexIO, op, err)
	}
	return orderHits(hits, topK, q.logger), nil
}

// pointPayload stores a chunk with the sequence that breaks score ties.
func pointPayload(c entities.Chunk, seq int64) (map[string]*qdrant.Value, error) {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	return qdrant.TryValueMap(map[string]any{
		"chunk_id":     c.ID,
		"document_id":  c.DocumentID,
		"source_doc":   c.SourceName,
		"chunk_index":  int64(c.Index),
		"start_offset": int64(c.Start),
		"end_offset":   int64(c.End),
		"content":      c.Content,
		"metadata":     string(meta),
		"seq":          seq,
	})
}

// orderHits puts Qdrant's candidates back in insertion order before ranking,
// so equal scores come out oldest first whatever order the server used.
func orderHits(hits []*qdrant.ScoredPoint, topK int, logger *zap.Logger) entities.RetrievalResult {
	type hit struct {
		scored
		seq int64
	}
	ordered := make([]hit, 0, len(hits))
	for _, h := range hits {
		c, seq := chunkFromPayload(h.GetPayload(), logger)
		ordered = append(ordered, hit{scored: scored{chunk: c, score: float64(h.GetScore())}, seq: seq})
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })

	candidates := make([]scored, len(ordered))
	for i, h := range ordered {
		candidates[i] = h.scored
	}
	return rank(candidates, topK)
}

func chunkFromPayload(p map[string]*qdrant.Value, logger *zap.Logger) (entities.Chunk, int64) {
	c := entities.Chunk{
		ID:         p["chunk_id"].GetStringValue(),
		DocumentID: p["document_id"].GetStringValue(),
		SourceName: p["source_doc"].GetStringValue(),
		Index:      int(p["chunk_index"].GetIntegerValue()),
		Start:      int(p["start_offset"].GetIntegerValue()),
		End:        int(p["end_offset"].GetIntegerValue()),
		Content:    p["content"].GetStringValue(),
	}
	if raw := p["metadata"].GetStringValue(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Metadata); err != nil {
			logger.Warn("corrupt point metadata", zap.String("chunk_id", c.ID), zap.Error(err))
		}
	}
	return c, p["seq"].GetIntegerValue()
}

func (q *QdrantIndex) Delete(ctx context.Context, documentID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.dim == 0 {
		return nil
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)},
				},
			},
		},
	})
	return errs.Wrap(errs.CodeIndexIO, "vectordb.Qdrant.Delete", err)
}

// DeleteAll drops the collection; the next upsert recreates it.
func (q *QdrantIndex) DeleteAll(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.dim == 0 {
		return nil
	}
	if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
		return errs.Wrap(errs.CodeIndexIO, "vectordb.Qdrant.DeleteAll", err)
	}
	q.dim = 0
	q.logger.Info("collection dropped", zap.String("collection", q.collection))
	return nil
}

func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.dim == 0 {
		return 0, nil
	}
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, errs.Wrap(errs.CodeIndexIO, "vectordb.Qdrant.Count", err)
	}
	return int(n), nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
