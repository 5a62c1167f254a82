package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/infrastructure/config"
)

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), nil, &out)
	assert.True(t, errors.Is(err, errUsage))
	assert.Contains(t, out.String(), "knowledge-vault serve")

	out.Reset()
	err = run(context.Background(), []string{"frobnicate"}, &out)
	assert.True(t, errors.Is(err, errUsage))

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"help"}, &out))
	assert.Contains(t, out.String(), "write-config")
}

func TestRun_WriteConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "conf", "kv.yaml")
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"write-config", path}, &out))
	assert.Contains(t, out.String(), path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Ingest.ChunkSize, cfg.Ingest.ChunkSize)
	assert.Equal(t, config.Default().Retrieval.TopK, cfg.Retrieval.TopK)
}

func TestRun_Ingest(t *testing.T) {
	t.Chdir(t.TempDir())

	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out := make([][]float32, len(req.Input))
		for i := range req.Input {
			out[i] = []float32{1, float32(i + 1)}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
	}))
	defer ollama.Close()

	cfg := config.Default()
	cfg.Index.Provider = "memory"
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.BaseURL = ollama.URL
	cfg.Generation.Provider = "ollama"
	cfg.Generation.BaseURL = ollama.URL
	cfg.Log.Level = "error"
	cfgPath := filepath.Join(t.TempDir(), "kv.yaml")
	require.NoError(t, config.Save(cfgPath, cfg))

	dir := t.TempDir()
	good := filepath.Join(dir, "guide.txt")
	require.NoError(t, os.WriteFile(good, []byte("The vault stores chunks and answers questions."), 0o644))
	missing := filepath.Join(dir, "missing.txt")

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"ingest", "-config", cfgPath, good}, &out))
	assert.Contains(t, out.String(), "OK    guide.txt")
	assert.Contains(t, out.String(), "index now holds 1 chunks")

	out.Reset()
	err := run(context.Background(), []string{"ingest", "-config", cfgPath, good, missing}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 sources failed")
	assert.Contains(t, out.String(), "FAIL  "+missing)
}

func TestRun_IngestWithoutSources(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfgPath := filepath.Join(t.TempDir(), "kv.yaml")
	cfg := config.Default()
	cfg.Index.Provider = "memory"
	require.NoError(t, config.Save(cfgPath, cfg))

	var out bytes.Buffer
	err := run(context.Background(), []string{"ingest", "-config", cfgPath}, &out)
	assert.True(t, errors.Is(err, errUsage))
}

func TestServeUntilDone_JoinsWatcher(t *testing.T) {
	var finished atomic.Bool
	watch := func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond) // a sync still in flight
		finished.Store(true)
		return nil
	}
	serveErr := errors.New("listen failed")

	err := serveUntilDone(context.Background(), zap.NewNop(), func(context.Context) error { return serveErr }, watch)
	assert.Same(t, serveErr, err)
	assert.True(t, finished.Load(), "watch loop must finish before returning")
}

func TestServeUntilDone_CancelStopsBoth(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var watched atomic.Bool
	serve := func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}
	watch := func(ctx context.Context) error {
		<-ctx.Done()
		watched.Store(true)
		return errors.New("watch error is logged, not returned")
	}

	done := make(chan error, 1)
	go func() { done <- serveUntilDone(ctx, zap.NewNop(), serve, watch) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
		assert.True(t, watched.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("serveUntilDone did not return after cancel")
	}
}

func TestServeUntilDone_NoWatcher(t *testing.T) {
	err := serveUntilDone(context.Background(), zap.NewNop(), func(context.Context) error { return nil }, nil)
	assert.NoError(t, err)
}
