// Package llm talks to chat-completion models.
package llm

import (
	"context"
	"time"
)

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultTimeout bounds a single completion call.
const DefaultTimeout = 120 * time.Second

// Message is one role-tagged turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tune a completion request. Zero values leave the provider default.
type Options struct {
	Temperature *float64
	MaxTokens   int
}

// Usage reports token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the model's reply.
type Completion struct {
	Text  string
	Usage Usage
}

// Completer produces a completion for a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts Options) (*Completion, error)
	ModelName() string
	Close() error
}
