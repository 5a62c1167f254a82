package vectordb

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
)

func TestQdrantIndex_Contract(t *testing.T) {
	host := os.Getenv("KV_TEST_QDRANT_HOST")
	if host == "" {
		t.Skip("KV_TEST_QDRANT_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("KV_TEST_QDRANT_PORT"))

	runIndexContract(t, func(t *testing.T) ports.VectorIndex {
		idx, err := NewQdrantIndex(context.Background(), QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: "kv_test_" + uuid.NewString(),
		}, nil)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = idx.DeleteAll(context.Background())
			_ = idx.Close()
		})
		return idx
	})
}

func scoredPoint(t *testing.T, chunkID string, score float32, seq int64) *qdrant.ScoredPoint {
	t.Helper()
	payload, err := pointPayload(entities.Chunk{ID: chunkID, DocumentID: "doc", SourceName: "doc.txt", Content: chunkID}, seq)
	require.NoError(t, err)
	return &qdrant.ScoredPoint{Payload: payload, Score: score}
}

func TestPointPayload_RoundTrip(t *testing.T) {
	c := entities.Chunk{
		ID:         "c1",
		DocumentID: "d1",
		SourceName: "guide.pdf",
		Index:      3,
		Start:      120,
		End:        480,
		Content:    "Installation steps",
		Metadata:   map[string]string{entities.MetaPage: "2"},
	}
	payload, err := pointPayload(c, 42)
	require.NoError(t, err)

	got, seq := chunkFromPayload(payload, zap.NewNop())
	assert.Equal(t, c, got)
	assert.Equal(t, int64(42), seq)
}

func TestChunkFromPayload_CorruptMetadata(t *testing.T) {
	payload, err := pointPayload(entities.Chunk{ID: "c1", Content: "text"}, 7)
	require.NoError(t, err)
	payload["metadata"] = qdrant.NewValueString("{not json")

	got, seq := chunkFromPayload(payload, zap.NewNop())
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, "text", got.Content)
	assert.Empty(t, got.Metadata)
	assert.Equal(t, int64(7), seq)
}

func TestOrderHits_EqualScoresFollowInsertion(t *testing.T) {
	// the server returns ties in arbitrary order
	hits := []*qdrant.ScoredPoint{
		scoredPoint(t, "c", 0.5, 30),
		scoredPoint(t, "best", 0.9, 40),
		scoredPoint(t, "a", 0.5, 10),
		scoredPoint(t, "b", 0.5, 20),
	}

	res := orderHits(hits, 3, zap.NewNop())
	assert.Equal(t, []string{"best", "a", "b"}, ids(res))
	assert.InDelta(t, 0.9, res[0].Score, 1e-6)
	assert.Equal(t, "doc.txt", res[1].SourceDoc)
}

func TestOrderHits_Empty(t *testing.T) {
	res := orderHits(nil, 5, zap.NewNop())
	assert.Empty(t, res)
}

// unconnectedQdrant builds an index whose client has never reached a server;
// grpc dials lazily, so only calls that skip the network succeed.
func unconnectedQdrant(t *testing.T) *QdrantIndex {
	t.Helper()
	client, err := qdrant.NewClient(&qdrant.Config{Host: "127.0.0.1", Port: 1, SkipCompatibilityCheck: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return &QdrantIndex{client: client, collection: "unused", logger: zap.NewNop()}
}

func TestQdrantIndex_NoCollectionShortCircuits(t *testing.T) {
	ctx := context.Background()
	q := unconnectedQdrant(t)

	res, err := q.Query(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, res)

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.NoError(t, q.Delete(ctx, "doc"))
	assert.NoError(t, q.DeleteAll(ctx))
	assert.NoError(t, q.Upsert(ctx, nil))
}

func TestQdrantIndex_ValidatesBeforeCallingServer(t *testing.T) {
	ctx := context.Background()
	q := unconnectedQdrant(t)

	_, err := q.Query(ctx, []float32{1, 0}, 0)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))

	err = q.Upsert(ctx, []entities.IndexEntry{
		entry("00000000-0000-0000-0000-000000000001", "doc", 1, 0),
		entry("00000000-0000-0000-0000-000000000002", "doc", 1, 0, 0),
	})
	assert.True(t, errors.Is(err, errs.ErrDimensionMismatch))

	q.dim = 3
	_, err = q.Query(ctx, []float32{1, 0}, 1)
	assert.True(t, errors.Is(err, errs.ErrDimensionMismatch))
}

func TestPointPayload_RejectsInvalidUTF8(t *testing.T) {
	_, err := pointPayload(entities.Chunk{ID: "c1", Content: "bad \xff byte"}, 1)
	assert.Error(t, err)
}
