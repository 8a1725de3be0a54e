package llm

import (
	"context"
	"net/http"
	"strings"

	"github.com/Aman-CERP/docrag/internal/httpjson"
)

// Ollama defaults.
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "llama3.2"
)

// OllamaConfig configures an Ollama chat endpoint.
type OllamaConfig struct {
	Host  string
	Model string
}

// Ollama calls POST {host}/api/chat without streaming.
type Ollama struct {
	client *http.Client
	cfg    OllamaConfig
}

var _ Completer = (*Ollama)(nil)

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         Message `json:"message"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

// NewOllama returns a completer for cfg, filling defaults.
func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	return &Ollama{client: httpjson.NewClient(), cfg: cfg}
}

// Complete implements Completer.
func (c *Ollama) Complete(ctx context.Context, messages []Message, opts Options) (*Completion, error) {
	req := ollamaChatRequest{Model: c.cfg.Model, Messages: messages}
	if opts.Temperature != nil || opts.MaxTokens > 0 {
		req.Options = map[string]any{}
		if opts.Temperature != nil {
			req.Options["temperature"] = *opts.Temperature
		}
		if opts.MaxTokens > 0 {
			req.Options["num_predict"] = opts.MaxTokens
		}
	}

	var resp ollamaChatResponse
	if err := httpjson.Post(ctx, c.client, "ollama", c.cfg.Host+"/api/chat", nil, req, &resp); err != nil {
		return nil, err
	}

	return &Completion{
		Text: resp.Message.Content,
		Usage: Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}

// ModelName implements Completer.
func (c *Ollama) ModelName() string { return c.cfg.Model }

// Close implements Completer.
func (c *Ollama) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
