package usecases

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
)

const (
	// SystemInstruction is sent with every question.
	SystemInstruction = "You are a helpful assistant for a document knowledge base. " +
		"Answer the question using only the provided context. " +
		"Cite the sources you rely on by name, as in [Source: report.pdf]. " +
		"If the context does not contain the answer, say that you don't know."

	// NoContextStatement replaces the context block when nothing was retrieved.
	NoContextStatement = "No relevant context was found in the knowledge base."

	// DefaultContextBudget is the token budget for retrieved passages.
	DefaultContextBudget = 3000
)

// Composer turns retrieved passages and recent turns into a prompt and asks
// the language model for an answer.
type Composer struct {
	llm     ports.LLMService
	counter ports.TokenCounter
	budget  int
	logger  *zap.Logger
}

// NewComposer creates a Composer. budget < 1 uses DefaultContextBudget.
func NewComposer(llm ports.LLMService, counter ports.TokenCounter, budget int, logger *zap.Logger) *Composer {
	if budget < 1 {
		budget = DefaultContextBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{llm: llm, counter: counter, budget: budget, logger: logger}
}

// Answer generates a reply and returns the sources whose passages made it into
// the prompt.
func (c *Composer) Answer(ctx context.Context, question string, result entities.RetrievalResult, history []entities.Turn) (string, []string, error) {
	prompt, included := c.Prompt(question, result, history)

	answer, err := c.llm.Generate(ctx, prompt)
	if err != nil {
		if errs.CodeOf(err) == "" {
			err = errs.Wrap(errs.CodeGenerationService, "usecases.Answer", err)
		}
		c.logger.Error("generation failed", zap.Error(err))
		return "", nil, err
	}
	return strings.TrimSpace(answer), included.Sources(), nil
}

// Prompt builds the prompt. Passages are added best first while they fit the
// budget; the ones that don't are dropped.
func (c *Composer) Prompt(question string, result entities.RetrievalResult, history []entities.Turn) (entities.Prompt, entities.RetrievalResult) {
	var (
		parts    []string
		included entities.RetrievalResult
		used     int
	)
	for _, r := range result {
		passage := formatPassage(r)
		cost := c.count(passage)
		if used+cost > c.budget {
			c.logger.Debug("passage dropped", zap.String("source", r.SourceDoc), zap.Int("tokens", cost))
			continue
		}
		used += cost
		parts = append(parts, passage)
		included = append(included, r)
	}

	contextText := NoContextStatement
	if len(parts) > 0 {
		contextText = strings.Join(parts, "\n\n")
	}

	return entities.Prompt{
		System:   SystemInstruction,
		History:  history,
		Context:  contextText,
		Question: question,
	}, included
}

func (c *Composer) count(s string) int {
	if c.counter == nil {
		return (len([]rune(s)) + 3) / 4
	}
	return c.counter.Count(s)
}

func formatPassage(r entities.QueryResult) string {
	if page := r.Chunk.Metadata[entities.MetaPage]; page != "" {
		return fmt.Sprintf("[Source: %s, page %s]\n%s", r.SourceDoc, page, r.Chunk.Content)
	}
	return fmt.Sprintf("[Source: %s]\n%s", r.SourceDoc, r.Chunk.Content)
}
