package embed

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// ResilientConfig configures batching, retry and pacing around a Provider.
type ResilientConfig struct {
	// MaxBatchSize is the most texts sent in one provider call.
	MaxBatchSize int

	// MaxAttempts bounds provider calls per batch, including the first.
	MaxAttempts int

	// InitialDelay, Multiplier and MaxDelay shape the exponential backoff.
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration

	// AttemptTimeout bounds a single provider call. Zero disables it.
	AttemptTimeout time.Duration

	// MinInterval is the minimum spacing between provider calls. Zero disables pacing.
	MinInterval time.Duration

	// Clock drives pacing and backoff sleeps. Nil means the wall clock.
	Clock Clock

	// Logger receives retry events. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultResilientConfig returns the defaults used by the CLI.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		MaxBatchSize:   DefaultMaxBatchSize,
		MaxAttempts:    DefaultMaxAttempts,
		InitialDelay:   DefaultInitialDelay,
		Multiplier:     2.0,
		MaxDelay:       DefaultMaxDelay,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

// Resilient is the Embedder used by the pipelines. It splits input into
// provider-sized batches, retries transient failures with capped
// exponential backoff and spaces calls with a Pacer.
type Resilient struct {
	provider Provider
	cfg      ResilientConfig
	pacer    *Pacer
	clock    Clock
	logger   *slog.Logger
	dims     atomic.Int64
}

var _ Embedder = (*Resilient)(nil)

// NewResilient wraps provider. Zero fields in cfg fall back to defaults.
func NewResilient(provider Provider, cfg ResilientConfig) *Resilient {
	def := DefaultResilientConfig()
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Resilient{
		provider: provider,
		cfg:      cfg,
		pacer:    NewPacer(cfg.MinInterval, cfg.Clock),
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
}

// Embed embeds a single text.
func (r *Resilient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in order. The whole call fails if any batch
// exhausts its attempts.
func (r *Resilient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += r.cfg.MaxBatchSize {
		end := min(start+r.cfg.MaxBatchSize, len(texts))

		vecs, err := r.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (r *Resilient) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	retryCfg := errors.RetryConfig{
		MaxAttempts:  r.cfg.MaxAttempts,
		InitialDelay: r.cfg.InitialDelay,
		MaxDelay:     r.cfg.MaxDelay,
		Multiplier:   r.cfg.Multiplier,
		ShouldRetry:  errors.IsRetryable,
		Sleep:        r.clock.Sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			r.logger.Warn("embedding_retry",
				slog.String("model", r.provider.ModelName()),
				slog.Int("attempt", attempt),
				slog.Int("batch_size", len(batch)),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()))
		},
	}

	vecs, err := errors.RetryWithResult(ctx, retryCfg, func(ctx context.Context) ([][]float32, error) {
		return r.attempt(ctx, batch)
	})
	if err != nil {
		return nil, err
	}

	if r.dims.Load() == 0 && len(vecs) > 0 {
		r.dims.CompareAndSwap(0, int64(len(vecs[0])))
	}
	return vecs, nil
}

// attempt performs one paced, time-bounded provider call.
func (r *Resilient) attempt(ctx context.Context, batch []string) ([][]float32, error) {
	if err := r.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	callCtx := ctx
	if r.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		defer cancel()
	}

	vecs, err := r.provider.Embed(callCtx, batch)
	if err != nil {
		// A per-attempt deadline is a transient failure; the caller's own
		// cancellation is not.
		if ctx.Err() == nil && callCtx.Err() == context.DeadlineExceeded && errors.GetCode(err) == "" {
			return nil, errors.New(errors.ErrCodeNetworkTimeout,
				fmt.Sprintf("%s did not answer within %s", r.provider.ModelName(), r.cfg.AttemptTimeout), err)
		}
		return nil, err
	}

	if len(vecs) != len(batch) {
		return nil, errors.New(errors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("provider returned %d vectors for %d inputs", len(vecs), len(batch)), nil)
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, errors.New(errors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("provider returned an empty vector at position %d", i), nil)
		}
	}
	return vecs, nil
}

// Dimensions returns the length of the first vector produced, or 0.
func (r *Resilient) Dimensions() int {
	return int(r.dims.Load())
}

// ModelName returns the provider's model.
func (r *Resilient) ModelName() string {
	return r.provider.ModelName()
}

// Close closes the provider.
func (r *Resilient) Close() error {
	return r.provider.Close()
}
