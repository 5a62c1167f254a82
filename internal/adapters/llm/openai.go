package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/adapters/retry"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
)

// OpenAIGenerator talks to any OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	cfg    Config
	client *openai.Client
}

func NewOpenAIGenerator(cfg Config) *OpenAIGenerator {
	cfg.setDefaults("https://api.openai.com/v1", openai.GPT3Dot5Turbo, 120*time.Second)

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIGenerator{cfg: cfg, client: openai.NewClientWithConfig(clientConfig)}
}

// Generate sends the system instruction, each remembered turn as a
// user/assistant pair, and finally the context plus question.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt entities.Prompt) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Messages:    messages(prompt),
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	}

	var resp openai.ChatCompletionResponse
	err := g.cfg.Retry.Do(ctx, g.cfg.onRetry("openai"), func(ctx context.Context) error {
		var err error
		resp, err = g.client.CreateChatCompletion(ctx, req)
		return retry.ClassifyOpenAI(err)
	})
	if err != nil {
		g.cfg.Logger.Error("generation failed", zap.String("model", g.cfg.Model), zap.Error(err))
		return "", errs.Wrap(errs.CodeGenerationService, "llm.OpenAI", err)
	}
	if len(resp.Choices) == 0 {
		return "", errs.New(errs.CodeGenerationService, "llm.OpenAI", "no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func messages(p entities.Prompt) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, 2+2*len(p.History))
	if p.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	for _, t := range p.History {
		msgs = append(msgs,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: t.Question},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: t.Answer},
		)
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.UserMessage()})
}
