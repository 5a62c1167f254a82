package llm

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
	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
)

// OllamaGenerator implements ports.LLMService using the Ollama generate API.
type OllamaGenerator struct {
	cfg    Config
	client *http.Client
}

// NewOllamaGenerator creates a new Ollama generation adapter.
func NewOllamaGenerator(cfg Config) *OllamaGenerator {
	cfg.setDefaults("http://localhost:11434", "llama3.2", 300*time.Second)
	return &OllamaGenerator{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate renders the prompt as a single completion and returns the answer.
func (a *OllamaGenerator) Generate(ctx context.Context, prompt entities.Prompt) (string, error) {
	jsonData, err := json.Marshal(ollamaGenerateRequest{
		Model:   a.cfg.Model,
		Prompt:  prompt.Render(),
		Options: ollamaOptions{Temperature: a.cfg.Temperature, NumPredict: a.cfg.MaxTokens},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var answer string
	err = a.cfg.Retry.Do(ctx, a.cfg.onRetry("ollama"), func(ctx context.Context) error {
		var err error
		answer, err = a.generate(ctx, jsonData)
		return err
	})
	if err != nil {
		a.cfg.Logger.Error("generation failed", zap.String("model", a.cfg.Model), zap.Error(err))
		return "", errs.Wrap(errs.CodeGenerationService, "llm.Ollama", err)
	}
	return answer, nil
}

func (a *OllamaGenerator) generate(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &retry.StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
	}

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return genResp.Response, nil
}
