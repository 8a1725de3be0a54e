package llm

import (
	"context"
	"strings"
)

// contextRule delimits the retrieved context inside a grounded prompt.
const contextRule = "---------------------"

// Extractive answers without a model by returning the retrieved context
// found between the rules of the last user message. It backs --offline.
type Extractive struct{}

var _ Completer = Extractive{}

// Complete implements Completer.
func (Extractive) Complete(ctx context.Context, messages []Message, _ Options) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var prompt string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			prompt = messages[i].Content
			break
		}
	}

	text := strings.TrimSpace(prompt)
	if parts := strings.Split(prompt, contextRule); len(parts) >= 3 {
		text = strings.TrimSpace(parts[1])
	}
	return &Completion{Text: text}, nil
}

// ModelName implements Completer.
func (Extractive) ModelName() string { return "extractive" }

// Close implements Completer.
func (Extractive) Close() error { return nil }
