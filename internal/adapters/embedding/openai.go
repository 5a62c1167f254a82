package embedding

import (
	"context"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/adapters/retry"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
)

// OpenAIEmbedder talks to any OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	cfg    Config
	client *openai.Client
}

func NewOpenAIEmbedder(cfg Config) *OpenAIEmbedder {
	cfg.setDefaults("https://api.openai.com/v1", string(openai.SmallEmbedding3), 60*time.Second)

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIEmbedder{cfg: cfg, client: openai.NewClientWithConfig(clientConfig)}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns vectors in input order; the response is reordered by its
// index field.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for _, b := range batches(len(texts), e.cfg.BatchSize) {
		var resp openai.EmbeddingResponse
		err := e.cfg.Retry.Do(ctx, e.cfg.onRetry("openai"), func(ctx context.Context) error {
			var err error
			resp, err = e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Model: openai.EmbeddingModel(e.cfg.Model),
				Input: texts[b[0]:b[1]],
			})
			return retry.ClassifyOpenAI(err)
		})
		if err != nil {
			e.cfg.Logger.Error("embedding batch failed", zap.Int("offset", b[0]), zap.Error(err))
			return nil, errs.Wrap(errs.CodeEmbeddingService, "embedding.OpenAI", err)
		}

		n := b[1] - b[0]
		if len(resp.Data) != n {
			return nil, errs.New(errs.CodeEmbeddingService, "embedding.OpenAI", "expected %d embeddings, got %d", n, len(resp.Data))
		}
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= n || out[b[0]+d.Index] != nil {
				return nil, errs.New(errs.CodeEmbeddingService, "embedding.OpenAI", "bad embedding index %d", d.Index)
			}
			out[b[0]+d.Index] = d.Embedding
		}
	}
	return out, nil
}
