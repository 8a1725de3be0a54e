// Package query answers questions from indexed passages: embed, search,
// prompt, complete.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/docrag/internal/embed"
	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/llm"
	"github.com/Aman-CERP/docrag/internal/store"
)

// Retrieval defaults.
const (
	DefaultK        = 5
	DefaultMinScore = 0.4
)

// Options tunes a Planner.
type Options struct {
	K        int     // passages per question (default DefaultK)
	MinScore float64 // similarity cutoff; negative disables it (default DefaultMinScore)

	// MemoryPairs is the conversation window. Zero selects
	// DefaultMemoryPairs; negative disables memory.
	MemoryPairs int

	Temperature *float64
	MaxTokens   int
}

// Dependencies are the collaborators of a Planner.
type Dependencies struct {
	Embedder  embed.Embedder    // required; usually an embed.CachedEmbedder
	Store     store.VectorStore // required
	Completer llm.Completer     // required for Answer, unused by Retrieve
	Logger    *slog.Logger
}

// Answer is a grounded reply.
type Answer struct {
	Text     string
	Sources  []store.ScoredRecord // rank order
	Usage    llm.Usage
	Grounded bool // false when no passage cleared the cutoff
}

// Planner is safe for concurrent use; concurrent questions share one memory.
type Planner struct {
	embedder  embed.Embedder
	store     store.VectorStore
	completer llm.Completer
	logger    *slog.Logger
	opts      Options
	memory    *Memory
}

// NewPlanner validates deps and applies defaults.
func NewPlanner(deps Dependencies, opts Options) (*Planner, error) {
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.K <= 0 {
		opts.K = DefaultK
	}
	if opts.MinScore == 0 {
		opts.MinScore = DefaultMinScore
	}
	if opts.MemoryPairs == 0 {
		opts.MemoryPairs = DefaultMemoryPairs
	}

	return &Planner{
		embedder:  deps.Embedder,
		store:     deps.Store,
		completer: deps.Completer,
		logger:    deps.Logger,
		opts:      opts,
		memory:    NewMemory(opts.MemoryPairs),
	}, nil
}

// Memory exposes the conversation window.
func (p *Planner) Memory() *Memory { return p.memory }

// Reset clears the conversation window.
func (p *Planner) Reset() { p.memory.Reset() }

// Retrieve returns the passages that best match question without calling
// the completion provider. k and minScore fall back to the configured
// values when zero.
func (p *Planner) Retrieve(ctx context.Context, question string, k int, minScore float64) ([]store.ScoredRecord, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New(errors.ErrCodeQueryEmpty, "question is empty", nil).
			WithSuggestion("ask a question with at least one word")
	}
	if k <= 0 {
		k = p.opts.K
	}
	if minScore == 0 {
		minScore = p.opts.MinScore
	}
	if minScore < 0 {
		minScore = -1
	}

	vec, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	hits, err := p.store.Search(ctx, vec, k, minScore)
	if err != nil {
		if errors.GetCode(err) != "" {
			return nil, err
		}
		return nil, errors.New(errors.ErrCodeSearchFailed, "vector search failed", err)
	}
	return hits, nil
}

// Answer retrieves context for question and asks the completion provider
// to answer from it. With no passage above the cutoff it returns
// InsufficientContext without calling the provider. Either way the
// exchange joins the conversation window; failed requests do not.
func (p *Planner) Answer(ctx context.Context, question string) (*Answer, error) {
	start := time.Now()
	hits, err := p.Retrieve(ctx, question, 0, 0)
	if err != nil {
		return nil, err
	}

	if len(hits) == 0 {
		p.memory.Add(question, InsufficientContext)
		p.logger.Info("query_answered",
			slog.Int("sources", 0),
			slog.Bool("grounded", false),
			slog.Duration("duration", time.Since(start)))
		return &Answer{Text: InsufficientContext, Sources: hits}, nil
	}

	if p.completer == nil {
		return nil, errors.ConfigError("no completion provider configured", nil)
	}

	messages := make([]llm.Message, 0, 2+2*p.memory.Len())
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt})
	messages = append(messages, p.memory.Messages()...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: BuildPrompt(question, hits)})

	c, err := p.completer.Complete(ctx, messages, llm.Options{
		Temperature: p.opts.Temperature,
		MaxTokens:   p.opts.MaxTokens,
	})
	if err != nil {
		if errors.GetCode(err) != "" {
			return nil, err
		}
		return nil, errors.New(errors.ErrCodeCompletionFailed, "completion failed", err)
	}

	text := strings.TrimSpace(c.Text)
	p.memory.Add(question, text)
	p.logger.Info("query_answered",
		slog.Int("sources", len(hits)),
		slog.Float64("top_score", hits[0].Score),
		slog.Bool("grounded", true),
		slog.Int("total_tokens", c.Usage.TotalTokens),
		slog.Duration("duration", time.Since(start)))

	return &Answer{Text: text, Sources: hits, Usage: c.Usage, Grounded: true}, nil
}
