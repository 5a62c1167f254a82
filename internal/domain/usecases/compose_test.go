package usecases

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
)

func hit(source, content string, score float64, meta map[string]string) entities.QueryResult {
	return entities.QueryResult{
		Chunk:     entities.Chunk{SourceName: source, Content: content, Metadata: meta},
		Score:     score,
		SourceDoc: source,
	}
}

func TestComposer_TagsPassagesWithSources(t *testing.T) {
	llm := &recordingLLM{answers: []string{"  Paris.  "}}
	c := NewComposer(llm, wordCounter{}, 0, nil)

	result := entities.RetrievalResult{
		hit("geo.pdf", "Paris is the capital of France.", 0.9, map[string]string{entities.MetaPage: "4"}),
		hit("notes.md", "France is in Europe.", 0.5, nil),
		hit("geo.pdf", "Lyon is a city in France.", 0.4, map[string]string{entities.MetaPage: "5"}),
	}
	answer, sources, err := c.Answer(context.Background(), "What is the capital of France?", result, nil)
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)
	assert.Equal(t, []string{"geo.pdf", "notes.md"}, sources)

	prompt := llm.last()
	assert.Equal(t, SystemInstruction, prompt.System)
	assert.Contains(t, prompt.Context, "[Source: geo.pdf, page 4]\nParis is the capital of France.")
	assert.Contains(t, prompt.Context, "[Source: notes.md]\nFrance is in Europe.")
	assert.Less(t, strings.Index(prompt.Context, "Paris"), strings.Index(prompt.Context, "Europe"))
}

func TestComposer_DropsPassagesOverBudget(t *testing.T) {
	llm := &recordingLLM{}
	c := NewComposer(llm, wordCounter{}, 12, nil)

	result := entities.RetrievalResult{
		hit("a.txt", "one two three four five", 0.9, nil),
		hit("b.txt", strings.Repeat("long ", 30), 0.8, nil),
		hit("c.txt", "six seven", 0.7, nil),
	}
	_, sources, err := c.Answer(context.Background(), "q", result, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "c.txt"}, sources)
	assert.NotContains(t, llm.last().Context, "long")
}

func TestComposer_NothingFitsMeansNoContext(t *testing.T) {
	llm := &recordingLLM{}
	c := NewComposer(llm, wordCounter{}, 1, nil)

	_, sources, err := c.Answer(context.Background(), "q", entities.RetrievalResult{hit("a.txt", "too many words here", 1, nil)}, nil)
	require.NoError(t, err)
	assert.Empty(t, sources)
	assert.Equal(t, NoContextStatement, llm.last().Context)
}

func TestComposer_PassesHistory(t *testing.T) {
	llm := &recordingLLM{}
	c := NewComposer(llm, nil, 0, nil)

	history := []entities.Turn{{Question: "Who wrote it?", Answer: "Ada."}}
	_, _, err := c.Answer(context.Background(), "When?", nil, history)
	require.NoError(t, err)

	rendered := llm.last().Render()
	assert.Contains(t, rendered, "User: Who wrote it?\nAssistant: Ada.")
	assert.True(t, strings.HasSuffix(rendered, "Question: When?\n\nAnswer:"))
}
