package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/errors"
)

func TestOpenAI_Complete(t *testing.T) {
	// Given: a chat endpoint that echoes usage
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Paris"}}],` +
			`"usage":{"prompt_tokens":12,"completion_tokens":1,"total_tokens":13}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "gpt-test"})
	require.NoError(t, err)
	temp := 0.0

	// When
	out, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "capital of France?"},
	}, Options{Temperature: &temp, MaxTokens: 50})

	// Then
	require.NoError(t, err)
	assert.Equal(t, "Paris", out.Text)
	assert.Equal(t, Usage{PromptTokens: 12, CompletionTokens: 1, TotalTokens: 13}, out.Usage)
	assert.Equal(t, "gpt-test", got.Model)
	assert.Len(t, got.Messages, 2)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 50, got.MaxTokens)
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, Options{})
	assert.Equal(t, errors.ErrCodeCompletionFailed, errors.GetCode(err))
}

func TestOllama_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, float64(64), req.Options["num_predict"])
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"hi"},"prompt_eval_count":5,"eval_count":2}`))
	}))
	defer srv.Close()

	out, err := NewOllama(OllamaConfig{Host: srv.URL}).
		Complete(context.Background(), []Message{{Role: RoleUser, Content: "hello"}}, Options{MaxTokens: 64})

	require.NoError(t, err)
	assert.Equal(t, "hi", out.Text)
	assert.Equal(t, 7, out.Usage.TotalTokens)
}

func TestGuarded_DoesNotRetryAndOpensCircuit(t *testing.T) {
	// Given: a provider that always fails with 503
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	inner := NewOllama(OllamaConfig{Host: srv.URL})
	breaker := errors.NewCircuitBreaker("test", errors.WithMaxFailures(2), errors.WithResetTimeout(time.Hour))
	g := NewGuarded(inner, time.Second, breaker, nil)
	msgs := []Message{{Role: RoleUser, Content: "q"}}

	// When: three questions are asked
	for i := 0; i < 3; i++ {
		_, err := g.Complete(context.Background(), msgs, Options{})
		require.Error(t, err)
	}

	// Then: one call per question until the breaker opens
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, errors.StateOpen, breaker.State())
}

type slowCompleter struct{}

func (slowCompleter) Complete(ctx context.Context, _ []Message, _ Options) (*Completion, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (slowCompleter) ModelName() string { return "slow" }
func (slowCompleter) Close() error      { return nil }

func TestGuarded_Timeout(t *testing.T) {
	g := NewGuarded(slowCompleter{}, 10*time.Millisecond, nil, nil)

	_, err := g.Complete(context.Background(), nil, Options{})

	assert.Equal(t, errors.ErrCodeNetworkTimeout, errors.GetCode(err))
}

func TestExtractive_ReturnsContext(t *testing.T) {
	prompt := "Context information is below.\n---------------------\nalpha\n\nbeta\n---------------------\nGiven the context..."

	out, err := Extractive{}.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: prompt},
	}, Options{})

	require.NoError(t, err)
	assert.Equal(t, "alpha\n\nbeta", out.Text)
}

func TestNew_Providers(t *testing.T) {
	_, err := New(FactoryConfig{Provider: "openai"})
	assert.Equal(t, errors.ErrCodeCredentialsMissing, errors.GetCode(err))

	_, err = New(FactoryConfig{Provider: "azure", APIKey: "k"})
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))

	c, err := New(FactoryConfig{Provider: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, DefaultOllamaModel, c.ModelName())

	_, err = New(FactoryConfig{Provider: "bard"})
	assert.Error(t, err)
}
