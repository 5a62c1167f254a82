package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/knowledge-vault/internal/adapters/retry"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
)

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

// ollamaServer embeds each input as [len(input)].
func ollamaServer(t *testing.T, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/api/embed", r.URL.Path)

		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		vecs := make([][]float32, len(req.Input))
		for i, in := range req.Input {
			vecs[i] = []float32{float32(len(in)), 1}
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: vecs})
	}))
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	var calls int32
	server := ollamaServer(t, &calls)
	defer server.Close()

	adapter := NewOllamaEmbedder(Config{BaseURL: server.URL, Model: "test-model"})
	emb, err := adapter.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, []float32{5, 1}, emb)
}

func TestOllamaEmbedder_EmbedBatchPreservesOrder(t *testing.T) {
	var calls int32
	server := ollamaServer(t, &calls)
	defer server.Close()

	adapter := NewOllamaEmbedder(Config{BaseURL: server.URL, BatchSize: 2})
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	results, err := adapter.EmbedBatch(context.Background(), texts)

	require.NoError(t, err)
	require.Len(t, results, len(texts))
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), results[i][0])
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestOllamaEmbedder_RetriesServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{0.1}}})
	}))
	defer server.Close()

	adapter := NewOllamaEmbedder(Config{BaseURL: server.URL, Retry: fastRetry()})
	emb, err := adapter.Embed(context.Background(), "test")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1}, emb)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOllamaEmbedder_ServerErrorExhaustsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := NewOllamaEmbedder(Config{BaseURL: server.URL, Retry: fastRetry()})
	_, err := adapter.Embed(context.Background(), "test")

	assert.True(t, errors.Is(err, errs.ErrEmbeddingService))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestOllamaEmbedder_BadRequestNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	adapter := NewOllamaEmbedder(Config{BaseURL: server.URL, Retry: fastRetry()})
	_, err := adapter.Embed(context.Background(), "test")

	assert.True(t, errors.Is(err, errs.ErrEmbeddingService))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOllamaEmbedder_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer server.Close()

	adapter := NewOllamaEmbedder(Config{BaseURL: server.URL})
	_, err := adapter.EmbedBatch(context.Background(), []string{"a", "b"})

	assert.True(t, errors.Is(err, errs.ErrEmbeddingService))
}

func TestOllamaEmbedder_DefaultValues(t *testing.T) {
	adapter := NewOllamaEmbedder(Config{})
	assert.Equal(t, "http://localhost:11434", adapter.cfg.BaseURL)
	assert.Equal(t, "nomic-embed-text", adapter.cfg.Model)
	assert.Equal(t, 64, adapter.cfg.BatchSize)
}

func TestBatches(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 2}, {2, 4}, {4, 5}}, batches(5, 2))
	assert.Empty(t, batches(0, 2))
}
