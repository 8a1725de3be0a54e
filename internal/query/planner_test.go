package query

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/llm"
	"github.com/Aman-CERP/docrag/internal/store"
)

// tableEmbedder maps known texts to fixed vectors.
type tableEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (e *tableEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (e *tableEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *tableEmbedder) Dimensions() int   { return 3 }
func (e *tableEmbedder) ModelName() string { return "table" }
func (e *tableEmbedder) Close() error      { return nil }

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Completion, error) {
	args := m.Called(ctx, messages, opts)
	c, _ := args.Get(0).(*llm.Completion)
	return c, args.Error(1)
}

func (m *mockCompleter) ModelName() string { return "mock" }
func (m *mockCompleter) Close() error      { return nil }

func seededStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	vs := store.NewMemoryStore()
	require.NoError(t, vs.CreateIndex(ctx, store.IndexSpec{Dimension: 3}))
	for _, r := range []store.Record{
		{ID: "cats", Text: "Cats sleep sixteen hours a day.", Vector: []float32{1, 0, 0}},
		{ID: "naps", Text: "Naps are short sleeps.", Vector: []float32{0.8, 0.6, 0}},
		{ID: "ships", Text: "Ships float on water.", Vector: []float32{0, 0, 1}},
	} {
		require.NoError(t, vs.Upsert(ctx, r))
	}
	return vs
}

var questionVectors = map[string][]float32{
	"How long do cats sleep?": {1, 0, 0},
	"What about dogs?":        {0.9, 0.1, 0},
	"Anything on volcanoes?":  {0, 1, 0},
}

func newPlanner(t *testing.T, vs store.VectorStore, c llm.Completer, opts Options) *Planner {
	t.Helper()
	p, err := NewPlanner(Dependencies{
		Embedder:  &tableEmbedder{vectors: questionVectors},
		Store:     vs,
		Completer: c,
	}, opts)
	require.NoError(t, err)
	return p
}

func TestAnswer_BuildsGroundedPrompt(t *testing.T) {
	// Given a store with two passages near the question
	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return(&llm.Completion{Text: " About sixteen hours. ", Usage: llm.Usage{PromptTokens: 40, CompletionTokens: 4, TotalTokens: 44}}, nil).
		Once()
	p := newPlanner(t, seededStore(t), c, Options{})

	// When asking
	ans, err := p.Answer(context.Background(), "How long do cats sleep?")
	require.NoError(t, err)

	// Then the answer is grounded on the passages in rank order
	assert.True(t, ans.Grounded)
	assert.Equal(t, "About sixteen hours.", ans.Text)
	assert.Equal(t, 44, ans.Usage.TotalTokens)
	require.Len(t, ans.Sources, 2)
	assert.Equal(t, "cats", ans.Sources[0].ID)
	assert.Equal(t, "naps", ans.Sources[1].ID)

	// And the provider saw the system message and the filled template
	messages := c.Calls[0].Arguments.Get(1).([]llm.Message)
	require.Len(t, messages, 2)
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt}, messages[0])
	want := "Context information is below.\n" +
		"---------------------\n" +
		"Cats sleep sixteen hours a day.\n\nNaps are short sleeps.\n" +
		"---------------------\n" +
		"Given the context information and not prior knowledge, answer the question: How long do cats sleep?"
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: want}, messages[1])
	c.AssertExpectations(t)
}

func TestAnswer_DefaultCutoffDropsUnrelatedPassages(t *testing.T) {
	// Given a question orthogonal to cats and ships, partly aligned with naps
	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return(&llm.Completion{Text: "No volcanoes here."}, nil).
		Once()
	p := newPlanner(t, seededStore(t), c, Options{})

	// When asking with the default cutoff
	ans, err := p.Answer(context.Background(), "Anything on volcanoes?")
	require.NoError(t, err)

	// Then only the passage above the cutoff is used
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "naps", ans.Sources[0].ID)
	assert.InDelta(t, 0.6, ans.Sources[0].Score, 1e-6)
	for _, h := range ans.Sources {
		assert.GreaterOrEqual(t, h.Score, DefaultMinScore)
	}
}

func TestAnswer_EmptyStoreIsInsufficientContext(t *testing.T) {
	// Given an empty store
	c := &mockCompleter{}
	p := newPlanner(t, store.NewMemoryStore(), c, Options{})

	// When asking
	ans, err := p.Answer(context.Background(), "How long do cats sleep?")
	require.NoError(t, err)

	// Then no completion is requested and the exchange is remembered
	assert.Equal(t, InsufficientContext, ans.Text)
	assert.False(t, ans.Grounded)
	assert.Empty(t, ans.Sources)
	c.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []Exchange{{Question: "How long do cats sleep?", Answer: InsufficientContext}}, p.Memory().Exchanges())
}

func TestAnswer_NothingAboveCutoff(t *testing.T) {
	c := &mockCompleter{}
	p := newPlanner(t, seededStore(t), c, Options{MinScore: 0.9})

	ans, err := p.Answer(context.Background(), "Anything on volcanoes?")
	require.NoError(t, err)
	assert.False(t, ans.Grounded)
	assert.Equal(t, InsufficientContext, ans.Text)
	c.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnswer_BlankQuestion(t *testing.T) {
	p := newPlanner(t, seededStore(t), &mockCompleter{}, Options{})

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := p.Answer(context.Background(), q)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeQueryEmpty, errors.GetCode(err))
	}
	assert.Zero(t, p.Memory().Len())
}

func TestAnswer_ReplaysMemory(t *testing.T) {
	// Given a planner that already answered one question
	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return(&llm.Completion{Text: "first"}, nil).Once()
	c.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return(&llm.Completion{Text: "second"}, nil).Once()
	p := newPlanner(t, seededStore(t), c, Options{})
	_, err := p.Answer(context.Background(), "How long do cats sleep?")
	require.NoError(t, err)

	// When asking a follow-up
	_, err = p.Answer(context.Background(), "What about dogs?")
	require.NoError(t, err)

	// Then the earlier exchange precedes the new prompt
	messages := c.Calls[1].Arguments.Get(1).([]llm.Message)
	require.Len(t, messages, 4)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "How long do cats sleep?"}, messages[1])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "first"}, messages[2])
	assert.True(t, strings.HasSuffix(messages[3].Content, "answer the question: What about dogs?"))

	// And Reset forgets it
	p.Reset()
	assert.Zero(t, p.Memory().Len())
}

func TestAnswer_MemoryDisabled(t *testing.T) {
	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(&llm.Completion{Text: "ok"}, nil)
	p := newPlanner(t, seededStore(t), c, Options{MemoryPairs: -1})

	for i := 0; i < 3; i++ {
		_, err := p.Answer(context.Background(), "How long do cats sleep?")
		require.NoError(t, err)
	}
	for _, call := range c.Calls {
		assert.Len(t, call.Arguments.Get(1).([]llm.Message), 2)
	}
}

func TestAnswer_CompletionFailureNotRemembered(t *testing.T) {
	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.FromStatus("openai", 503, "overloaded", "")).Once()
	p := newPlanner(t, seededStore(t), c, Options{})

	_, err := p.Answer(context.Background(), "How long do cats sleep?")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeProviderUnavailable, errors.GetCode(err))
	assert.Zero(t, p.Memory().Len())
}

func TestAnswer_UncodedCompletionErrorIsWrapped(t *testing.T) {
	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(nil, fmt.Errorf("boom")).Once()
	p := newPlanner(t, seededStore(t), c, Options{})

	_, err := p.Answer(context.Background(), "How long do cats sleep?")
	assert.Equal(t, errors.ErrCodeCompletionFailed, errors.GetCode(err))
}

func TestAnswer_EmbeddingFailure(t *testing.T) {
	c := &mockCompleter{}
	p, err := NewPlanner(Dependencies{
		Embedder:  &tableEmbedder{err: errors.FromStatus("openai", 401, "bad key", "")},
		Store:     seededStore(t),
		Completer: c,
	}, Options{})
	require.NoError(t, err)

	_, err = p.Answer(context.Background(), "How long do cats sleep?")
	require.Error(t, err)
	assert.True(t, errors.IsAuthFailure(err))
	c.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnswer_DimensionMismatchWithIndex(t *testing.T) {
	vs := store.NewMemoryStore()
	require.NoError(t, vs.CreateIndex(context.Background(), store.IndexSpec{Dimension: 2}))
	require.NoError(t, vs.Upsert(context.Background(), store.Record{ID: "a", Text: "a", Vector: []float32{1, 0}}))
	p := newPlanner(t, vs, &mockCompleter{}, Options{})

	_, err := p.Answer(context.Background(), "How long do cats sleep?")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDimensionMismatch, errors.GetCode(err))
}

func TestRetrieve(t *testing.T) {
	p := newPlanner(t, seededStore(t), nil, Options{})

	hits, err := p.Retrieve(context.Background(), "How long do cats sleep?", 1, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "cats", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)

	hits, err = p.Retrieve(context.Background(), "Anything on volcanoes?", 10, -1)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestAnswer_NoCompleterConfigured(t *testing.T) {
	p := newPlanner(t, seededStore(t), nil, Options{})
	_, err := p.Answer(context.Background(), "How long do cats sleep?")
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestAnswer_Offline(t *testing.T) {
	p := newPlanner(t, seededStore(t), llm.Extractive{}, Options{K: 1})

	ans, err := p.Answer(context.Background(), "How long do cats sleep?")
	require.NoError(t, err)
	assert.Equal(t, "Cats sleep sixteen hours a day.", ans.Text)
}

func TestAnswer_ConcurrentUse(t *testing.T) {
	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(&llm.Completion{Text: "ok"}, nil)
	p := newPlanner(t, seededStore(t), c, Options{MemoryPairs: 3})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Answer(context.Background(), "How long do cats sleep?")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, p.Memory().Len())
}

func TestNewPlanner_RequiresDependencies(t *testing.T) {
	_, err := NewPlanner(Dependencies{Store: store.NewMemoryStore()}, Options{})
	assert.Error(t, err)
	_, err = NewPlanner(Dependencies{Embedder: &tableEmbedder{}}, Options{})
	assert.Error(t, err)
}
