package entities

import (
	"fmt"
	"strings"
)

// Prompt is the structured input to a language model call.
// Chat backends map it to role messages; completion backends use Render.
type Prompt struct {
	System   string
	History  []Turn
	Context  string
	Question string
}

// Render flattens the prompt into a single completion-style string.
func (p Prompt) Render() string {
	var b strings.Builder
	if p.System != "" {
		b.WriteString(p.System)
		b.WriteString("\n\n")
	}
	if len(p.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, t := range p.History {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.Question, t.Answer)
		}
		b.WriteString("\n")
	}
	b.WriteString(p.UserMessage())
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// UserMessage is the final user turn: context followed by the question.
func (p Prompt) UserMessage() string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", p.Context, p.Question)
}
