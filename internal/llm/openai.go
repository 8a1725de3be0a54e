package llm

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/httpjson"
)

// OpenAI defaults.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"
)

// OpenAIConfig configures an OpenAI-compatible chat endpoint.
// Setting APIVersion switches to Azure OpenAI conventions.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	APIVersion string
}

// OpenAI calls POST {base}/chat/completions.
type OpenAI struct {
	client *http.Client
	cfg    OpenAIConfig
}

var _ Completer = (*OpenAI)(nil)

type chatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// NewOpenAI validates cfg and returns a completer.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(errors.ErrCodeCredentialsMissing, "openai completion: API key is not set", nil).
			WithSuggestion("set DOCRAG_COMPLETION_API_KEY or OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenAI{client: httpjson.NewClient(), cfg: cfg}, nil
}

// Complete implements Completer.
func (c *OpenAI) Complete(ctx context.Context, messages []Message, opts Options) (*Completion, error) {
	endpoint := c.cfg.BaseURL + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	if c.cfg.APIVersion != "" {
		endpoint += "?api-version=" + url.QueryEscape(c.cfg.APIVersion)
		headers = map[string]string{"api-key": c.cfg.APIKey}
	}

	req := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	var resp chatResponse
	if err := httpjson.Post(ctx, c.client, "openai", endpoint, headers, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New(errors.ErrCodeCompletionFailed, "openai returned no choices", nil)
	}

	return &Completion{Text: resp.Choices[0].Message.Content, Usage: resp.Usage}, nil
}

// ModelName implements Completer.
func (c *OpenAI) ModelName() string { return c.cfg.Model }

// Close implements Completer.
func (c *OpenAI) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
