package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// Guarded bounds each completion with a timeout and stops calling a
// provider that keeps failing. It never retries.
type Guarded struct {
	inner   Completer
	timeout time.Duration
	breaker *errors.CircuitBreaker
	logger  *slog.Logger
}

var _ Completer = (*Guarded)(nil)

// NewGuarded wraps inner. A zero timeout means DefaultTimeout.
func NewGuarded(inner Completer, timeout time.Duration, breaker *errors.CircuitBreaker, logger *slog.Logger) *Guarded {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if breaker == nil {
		breaker = errors.NewCircuitBreaker("completion provider")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{inner: inner, timeout: timeout, breaker: breaker, logger: logger}
}

// Complete implements Completer.
func (g *Guarded) Complete(ctx context.Context, messages []Message, opts Options) (*Completion, error) {
	start := time.Now()
	out, err := errors.Execute(g.breaker, func() (*Completion, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		c, err := g.inner.Complete(callCtx, messages, opts)
		if err != nil && ctx.Err() == nil && callCtx.Err() == context.DeadlineExceeded && errors.GetCode(err) == "" {
			err = errors.New(errors.ErrCodeNetworkTimeout, g.inner.ModelName()+" did not answer in time", err)
		}
		return c, err
	})
	if err != nil {
		g.logger.Warn("completion_failed",
			slog.String("model", g.inner.ModelName()),
			slog.String("breaker", g.breaker.State().String()),
			slog.String("error", err.Error()))
		return nil, err
	}

	g.logger.Debug("completion_done",
		slog.String("model", g.inner.ModelName()),
		slog.Int("total_tokens", out.Usage.TotalTokens),
		slog.Duration("duration", time.Since(start)))
	return out, nil
}

// ModelName implements Completer.
func (g *Guarded) ModelName() string { return g.inner.ModelName() }

// Close implements Completer.
func (g *Guarded) Close() error { return g.inner.Close() }
