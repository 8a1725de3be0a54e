package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/docrag/internal/chunk"
	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/embed"
	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/extract"
	"github.com/Aman-CERP/docrag/internal/index"
	"github.com/Aman-CERP/docrag/internal/llm"
	"github.com/Aman-CERP/docrag/internal/logging"
	"github.com/Aman-CERP/docrag/internal/query"
	"github.com/Aman-CERP/docrag/internal/source"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/internal/ui"
)

// app holds the components one command run needs. Close releases them in
// reverse order of creation.
type app struct {
	opts   *globalOptions
	cfg    *config.Config
	root   string
	logger *slog.Logger

	embedder  embed.Embedder
	store     store.VectorStore
	completer llm.Completer

	closers []func()
}

// loadConfig resolves the project directory and loads its configuration.
func loadConfig(opts *globalOptions) (*config.Config, string, error) {
	root, err := filepath.Abs(opts.projectDir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve project directory: %w", err)
	}
	cfg, err := config.Load(root, opts.configFile)
	if err != nil {
		return nil, "", err
	}
	if opts.offline {
		cfg.Offline()
	}
	return cfg, root, nil
}

// newApp loads config, starts logging and opens the embedder and store.
// In serve mode logs never reach stderr.
func newApp(ctx context.Context, opts *globalOptions, serve bool) (*app, error) {
	cfg, root, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	a := &app{opts: opts, cfg: cfg, root: root}
	a.logger = a.setupLogging(serve)

	a.embedder, err = newEmbedder(cfg, a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.onClose(func() { _ = a.embedder.Close() })

	a.store, err = openStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.onClose(func() {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("store_close_failed", slog.String("error", err.Error()))
		}
	})

	a.logger.Debug("app_ready",
		slog.String("project", root),
		slog.String("store", cfg.Store.Backend),
		slog.String("embeddings", cfg.Embeddings.Provider+"/"+a.embedder.ModelName()))
	return a, nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases everything newApp and the lazy builders opened.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// setupLogging sends logs to the rotating file. --debug raises the level
// and mirrors to stderr except when serving. A log file that cannot be
// opened disables logging rather than failing the command.
func (a *app) setupLogging(serve bool) *slog.Logger {
	lc := logging.Config{
		Level:         a.cfg.Logging.Level,
		FilePath:      a.cfg.Logging.File,
		MaxSizeMB:     a.cfg.Logging.MaxSizeMB,
		MaxFiles:      a.cfg.Logging.MaxFiles,
		WriteToStderr: a.cfg.Logging.Stderr,
	}
	if a.opts.debug {
		lc.Level = "debug"
		lc.WriteToStderr = true
	}

	prev := slog.Default()
	var (
		logger  *slog.Logger
		cleanup func()
		err     error
	)
	if serve {
		logger, cleanup, err = logging.SetupServeMode(lc)
	} else {
		logger, cleanup, err = logging.Setup(lc)
	}
	if err != nil {
		return logging.Discard()
	}
	slog.SetDefault(logger)
	a.onClose(func() {
		slog.SetDefault(prev)
		cleanup()
	})
	return logger
}

// newEmbedder builds the configured provider behind retry, pacing and an
// LRU cache.
func newEmbedder(cfg *config.Config, logger *slog.Logger) (embed.Embedder, error) {
	ec := cfg.Embeddings
	inner, err := embed.New(embed.FactoryConfig{
		Provider:   ec.Provider,
		Model:      ec.Model,
		BaseURL:    ec.BaseURL,
		APIKey:     ec.APIKey,
		APIVersion: ec.APIVersion,
		Dimensions: ec.Dimensions,
		Resilient: embed.ResilientConfig{
			MaxBatchSize:   ec.BatchSize,
			MaxAttempts:    ec.MaxAttempts,
			InitialDelay:   config.MustDuration(ec.InitialDelay),
			Multiplier:     ec.Multiplier,
			MaxDelay:       config.MustDuration(ec.MaxDelay),
			AttemptTimeout: config.MustDuration(ec.Timeout),
			MinInterval:    config.MustDuration(ec.MinInterval),
			Logger:         logger,
		},
	})
	if err != nil {
		return nil, err
	}
	return embed.NewCachedEmbedder(inner, ec.CacheSize), nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.VectorStore, error) {
	mc := cfg.Store.Mongo
	return store.Open(ctx, store.Config{
		Backend: cfg.Store.Backend,
		Dir:     cfg.Store.Dir,
		Mongo: store.MongoConfig{
			URI:        mc.URI,
			Database:   mc.Database,
			Collection: mc.Collection,
			IndexName:  mc.IndexName,
			EfSearch:   mc.EfSearch,
			Timeout:    config.MustDuration(mc.Timeout),
		},
	})
}

// Completer builds the completion provider on first use, guarded by a
// per-call timeout and a circuit breaker.
func (a *app) Completer() (llm.Completer, error) {
	if a.completer != nil {
		return a.completer, nil
	}
	cc := a.cfg.Completion
	inner, err := llm.New(llm.FactoryConfig{
		Provider:   cc.Provider,
		Model:      cc.Model,
		BaseURL:    cc.BaseURL,
		APIKey:     cc.APIKey,
		APIVersion: cc.APIVersion,
	})
	if err != nil {
		return nil, err
	}
	breaker := errors.NewCircuitBreaker("completion",
		errors.WithMaxFailures(cc.BreakerFailures),
		errors.WithResetTimeout(config.MustDuration(cc.BreakerReset)))
	a.completer = llm.NewGuarded(inner, config.MustDuration(cc.Timeout), breaker, a.logger)
	a.onClose(func() { _ = a.completer.Close() })
	return a.completer, nil
}

// Indexer builds an indexer reporting progress to renderer.
func (a *app) Indexer(renderer ui.Renderer) (*index.Indexer, error) {
	ids, err := chunk.StrategyByName(a.cfg.Ingest.IDStrategy)
	if err != nil {
		return nil, err
	}
	splitter, err := chunk.NewSplitter(chunk.Options{
		MaxChunkSize: a.cfg.Chunking.MaxChunkSize,
		Overlap:      a.cfg.Chunking.Overlap,
		IDs:          ids,
	})
	if err != nil {
		return nil, errors.ConfigError("invalid chunking settings", err)
	}
	metric, err := store.ParseMetric(a.cfg.Store.Metric)
	if err != nil {
		return nil, err
	}

	var params map[string]any
	if strings.EqualFold(a.cfg.Store.Backend, store.BackendMongo) {
		params = map[string]any{store.ParamNumLists: a.cfg.Store.Mongo.NumLists}
	}

	return index.New(index.Dependencies{
		Splitter:   splitter,
		Embedder:   a.embedder,
		Store:      a.store,
		Extractors: extract.NewRegistry(nil),
		Renderer:   renderer,
		Logger:     a.logger,
	}, index.Options{
		Extensions:  a.cfg.Ingest.Extensions,
		Workers:     a.cfg.Ingest.Workers,
		BatchSize:   a.cfg.Ingest.BatchSize,
		Metric:      metric,
		IndexParams: params,
		Folder:      a.folderOptions(),
	})
}

func (a *app) folderOptions() source.FolderOptions {
	return source.FolderOptions{
		RespectGitignore: a.cfg.Ingest.RespectGitignore,
		IncludeHidden:    a.cfg.Ingest.IncludeHidden,
		Exclude:          a.cfg.Ingest.Exclude,
	}
}

// sourceConfig maps config onto what source.Open needs for bucket URIs.
func (a *app) sourceConfig() source.Config {
	m, s := a.cfg.Sources.MinIO, a.cfg.Sources.S3
	return source.Config{
		MinIO: source.MinIOConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			UseSSL:    m.UseSSL,
			Region:    m.Region,
		},
		S3: source.S3Config{
			Region:       s.Region,
			Endpoint:     s.Endpoint,
			UsePathStyle: s.UsePathStyle,
		},
		RespectGitignore: a.cfg.Ingest.RespectGitignore,
	}
}

// Planner builds a query planner. memoryPairs overrides the configured
// window when non-zero; negative disables memory.
func (a *app) Planner(memoryPairs int) (*query.Planner, error) {
	completer, err := a.Completer()
	if err != nil {
		return nil, err
	}
	return query.NewPlanner(query.Dependencies{
		Embedder:  a.embedder,
		Store:     a.store,
		Completer: completer,
		Logger:    a.logger,
	}, a.plannerOptions(memoryPairs))
}

// plannerOptions maps the retrieval settings. A configured min_score of 0
// means no cutoff.
func (a *app) plannerOptions(memoryPairs int) query.Options {
	if memoryPairs == 0 {
		memoryPairs = a.cfg.Retrieval.MemoryPairs
	}
	minScore := a.cfg.Retrieval.MinScore
	if minScore == 0 {
		minScore = -1
	}
	return query.Options{
		K:           a.cfg.Retrieval.K,
		MinScore:    minScore,
		MemoryPairs: memoryPairs,
		Temperature: a.cfg.Completion.Temperature,
		MaxTokens:   a.cfg.Completion.MaxTokens,
	}
}

// renderer picks the ingest progress renderer for out.
func (a *app) renderer(out io.Writer, src string) ui.Renderer {
	return ui.NewRenderer(ui.NewConfig(out,
		ui.WithForcePlain(a.opts.plain),
		ui.WithNoColor(a.opts.noColor),
		ui.WithSource(src)))
}

// answerRenderer prints answers and passages to out.
func (a *app) answerRenderer(out io.Writer, showSources bool) *ui.AnswerRenderer {
	return ui.NewAnswerRenderer(out, a.opts.noColor || a.opts.plain, showSources)
}

// hits converts scored records for display.
func hits(records []store.ScoredRecord) []ui.Hit {
	out := make([]ui.Hit, 0, len(records))
	for _, r := range records {
		src, ord := index.Citation(r.Record)
		out = append(out, ui.Hit{Source: src, Ordinal: ord, Score: r.Score, Text: r.Text})
	}
	return out
}

// answerView converts a planner answer for display.
func answerView(question string, ans *query.Answer) ui.AnswerView {
	return ui.AnswerView{
		Question: question,
		Text:     ans.Text,
		Grounded: ans.Grounded,
		Sources:  hits(ans.Sources),
		Tokens:   ans.Usage.TotalTokens,
	}
}
