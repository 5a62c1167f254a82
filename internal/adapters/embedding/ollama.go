package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/adapters/retry"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
)

// OllamaEmbedder implements ports.EmbeddingService using the Ollama API.
type OllamaEmbedder struct {
	cfg    Config
	client *http.Client
}

// NewOllamaEmbedder creates a new Ollama embedding adapter.
func NewOllamaEmbedder(cfg Config) *OllamaEmbedder {
	cfg.setDefaults("http://localhost:11434", "nomic-embed-text", 60*time.Second)
	return &OllamaEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// ollamaEmbedRequest is the /api/embed request format.
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates an embedding for a single text.
func (a *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in batches of cfg.BatchSize.
func (a *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, b := range batches(len(texts), a.cfg.BatchSize) {
		var vecs [][]float32
		err := a.cfg.Retry.Do(ctx, a.cfg.onRetry("ollama"), func(ctx context.Context) error {
			var err error
			vecs, err = a.embed(ctx, texts[b[0]:b[1]])
			return err
		})
		if err != nil {
			a.cfg.Logger.Error("embedding batch failed", zap.Int("offset", b[0]), zap.Error(err))
			return nil, errs.Wrap(errs.CodeEmbeddingService, "embedding.Ollama", err)
		}
		if len(vecs) != b[1]-b[0] {
			return nil, errs.New(errs.CodeEmbeddingService, "embedding.Ollama",
				"expected %d embeddings, got %d", b[1]-b[0], len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (a *OllamaEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	jsonData, err := json.Marshal(ollamaEmbedRequest{Model: a.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/api/embed", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	a.cfg.Logger.Debug("calling ollama", zap.String("model", a.cfg.Model), zap.Int("texts", len(texts)))
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &retry.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var embedResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return embedResp.Embeddings, nil
}
