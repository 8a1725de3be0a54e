package index

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docrag/internal/chunk"
	"github.com/Aman-CERP/docrag/internal/embed"
	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/extract"
	"github.com/Aman-CERP/docrag/internal/source"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/internal/ui"
)

// MaxDocumentSize bounds how much of one document is read.
const MaxDocumentSize = 64 << 20

// Options tunes an Indexer.
type Options struct {
	// Extensions is the default allow-list (empty selects source.DefaultExtensions).
	Extensions []string

	// Workers bounds concurrent embed+upsert batches after the first chunk.
	Workers int

	// BatchSize is the number of chunks a worker embeds and upserts at once.
	BatchSize int

	// Metric and IndexParams are passed to CreateIndex.
	Metric      store.Metric
	IndexParams map[string]any

	// Folder configures the walk done by IngestFolder.
	Folder source.FolderOptions
}

// Dependencies are the collaborators of an Indexer.
type Dependencies struct {
	Splitter   *chunk.Splitter   // required
	Embedder   embed.Embedder    // required
	Store      store.VectorStore // required
	Extractors *extract.Registry // default: extract.NewRegistry(nil)
	Renderer   ui.Renderer       // default: ui.NopRenderer
	Logger     *slog.Logger      // default: slog.Default()
}

// Indexer ingests documents into a VectorStore.
//
// The first chunk of a run is embedded on its own and its length provisions
// the store. Only then do workers embed the remaining chunks concurrently,
// each vector checked against that dimension.
//
// A document that is read successfully replaces everything stored for it:
// its earlier chunks are removed before the new ones are written.
type Indexer struct {
	splitter   *chunk.Splitter
	embedder   embed.Embedder
	store      store.VectorStore
	extractors *extract.Registry
	renderer   ui.Renderer
	logger     *slog.Logger
	opts       Options
}

// New validates deps and returns an Indexer.
func New(deps Dependencies, opts Options) (*Indexer, error) {
	if deps.Splitter == nil {
		return nil, fmt.Errorf("splitter is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if deps.Extractors == nil {
		deps.Extractors = extract.NewRegistry(nil)
	}
	if deps.Renderer == nil {
		deps.Renderer = ui.NopRenderer{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Metric == "" {
		opts.Metric = store.MetricCosine
	}

	return &Indexer{
		splitter:   deps.Splitter,
		embedder:   deps.Embedder,
		store:      deps.Store,
		extractors: deps.Extractors,
		renderer:   deps.Renderer,
		logger:     deps.Logger,
		opts:       opts,
	}, nil
}

// IngestFolder walks path recursively and ingests every file whose
// extension is in allowedExtensions (the configured default when empty).
func (ix *Indexer) IngestFolder(ctx context.Context, path string, allowedExtensions []string) (*Report, error) {
	src, err := source.NewFolderSource(path, ix.opts.Folder)
	if err != nil {
		return nil, err
	}
	return ix.IngestSource(ctx, src, allowedExtensions)
}

// Ingest ingests every document of src that passes the configured
// extension allow-list.
func (ix *Indexer) Ingest(ctx context.Context, src source.Source) (*Report, error) {
	return ix.IngestSource(ctx, src, nil)
}

// IngestSource ingests src filtered by exts, or by the configured
// allow-list when exts is empty.
func (ix *Indexer) IngestSource(ctx context.Context, src source.Source, exts []string) (*Report, error) {
	if len(exts) == 0 {
		exts = ix.opts.Extensions
	}
	allowed := source.NewExtensionSet(exts...)
	r := newRun(ix, src.Name())

	ix.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "Scanning " + src.Name()})
	ix.logger.Info("ingest_started",
		slog.String("source", src.Name()),
		slog.Any("extensions", allowed.List()))

	var docs []source.Document
	err := src.Walk(ctx, func(doc source.Document) error {
		if !allowed.Match(doc.ID) {
			r.report.FilesSkipped++
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	r.timing.scan = time.Since(r.start)
	if err != nil {
		return r.finish(err)
	}

	return r.finish(r.ingest(ctx, docs))
}

// IngestFile ingests one document regardless of the allow-list. Watch mode
// uses it for files that changed on disk.
func (ix *Indexer) IngestFile(ctx context.Context, doc source.Document) (*Report, error) {
	r := newRun(ix, doc.ID)
	return r.finish(r.ingest(ctx, []source.Document{doc}))
}

// RemoveDocument deletes every chunk stored for the document id. Watch mode
// calls it when a file is deleted or renamed away.
func (ix *Indexer) RemoveDocument(ctx context.Context, id string) (int, error) {
	n, err := ix.store.DeleteBySource(ctx, id)
	if err != nil {
		return 0, err
	}
	ix.logger.Info("document_removed",
		slog.String("document", id),
		slog.Int("chunks", n))
	return n, nil
}

// stageTiming tracks duration for each ingest stage.
type stageTiming struct {
	scan  time.Duration
	chunk time.Duration
	embed time.Duration
}

// run is the state of one ingest call.
type run struct {
	ix     *Indexer
	start  time.Time
	timing stageTiming

	mu     sync.Mutex
	report Report
	done   int // chunks embedded or skipped, for progress
	total  int
}

func newRun(ix *Indexer, name string) *run {
	return &run{ix: ix, start: time.Now(), report: Report{Source: name}}
}

func (r *run) ingest(ctx context.Context, docs []source.Document) error {
	chunks, err := r.chunkDocuments(ctx, docs)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	embedStart := time.Now()
	defer func() { r.timing.embed = time.Since(embedStart) }()
	return r.embedAndStore(ctx, chunks)
}

// chunkDocuments reads, extracts and splits each document. Documents that
// cannot be read or extracted are skipped with a recorded failure.
func (r *run) chunkDocuments(ctx context.Context, docs []source.Document) ([]*pending, error) {
	start := time.Now()
	defer func() { r.timing.chunk = time.Since(start) }()

	var out []*pending
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.ix.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageChunking,
			Current:     i + 1,
			Total:       len(docs),
			CurrentFile: doc.ID,
		})

		text, err := r.readText(ctx, doc)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if isAbort(err) {
				return nil, err
			}
			r.fileFailed(doc.ID, err)
			continue
		}

		pieces := r.ix.splitter.Chunk(chunk.Document{SourceID: doc.ID, Text: text})
		removed, err := r.ix.store.DeleteBySource(ctx, doc.ID)
		if err != nil {
			if ctx.Err() != nil || isAbort(err) {
				return nil, err
			}
			r.fileFailed(doc.ID, err)
			continue
		}
		r.report.ChunksReplaced += removed
		r.report.FilesProcessed++
		for _, c := range pieces {
			out = append(out, &pending{chunk: c, ext: doc.Ext})
		}
		r.ix.logger.Debug("document_chunked",
			slog.String("document", doc.ID),
			slog.Int("chunks", len(pieces)),
			slog.Int("replaced", removed))
	}
	return out, nil
}

func (r *run) readText(ctx context.Context, doc source.Document) (string, error) {
	if !r.ix.extractors.Supports(doc.Ext) {
		return "", errors.New(errors.ErrCodeUnsupportedExtension,
			fmt.Sprintf("no text extractor for %q files", doc.Ext), nil)
	}
	rc, err := doc.Open(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(io.LimitReader(rc, MaxDocumentSize+1))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errors.IOError("read "+doc.ID, err)
	}
	if len(data) > MaxDocumentSize {
		return "", errors.ValidationError(fmt.Sprintf("document exceeds %d bytes", MaxDocumentSize), nil)
	}
	return r.ix.extractors.Extract(ctx, doc.Ext, data)
}

// pending is a chunk waiting for its vector.
type pending struct {
	chunk  *chunk.Chunk
	ext    string
	vector []float32
}

func (p *pending) record() store.Record {
	return store.Record{
		ID:     p.chunk.ID,
		Text:   p.chunk.Text,
		Vector: p.vector,
		Metadata: map[string]any{
			MetaSource:      p.chunk.SourceID,
			MetaContentHash: chunk.ContentHash(p.chunk.Text),
			MetaOrdinal:     p.chunk.Ordinal,
			MetaExt:         p.ext,
		},
	}
}

func (r *run) embedAndStore(ctx context.Context, chunks []*pending) error {
	r.total = len(chunks)
	r.ix.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Total: r.total})

	// Dimension barrier: embed chunks one at a time until one succeeds,
	// then provision the store with its length.
	next := 0
	for ; next < len(chunks); next++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := chunks[next]
		vec, err := r.ix.embedder.Embed(ctx, p.chunk.Text)
		if err != nil {
			if ctx.Err() != nil || isAbort(err) {
				return err
			}
			r.chunkFailed(p, err)
			continue
		}
		if len(vec) == 0 {
			r.chunkFailed(p, errors.New(errors.ErrCodeEmbeddingFailed, "provider returned an empty vector", nil))
			continue
		}

		spec := store.IndexSpec{Dimension: len(vec), Metric: r.ix.opts.Metric, Params: r.ix.opts.IndexParams}
		if err := r.ix.store.CreateIndex(ctx, spec); err != nil {
			return err
		}
		r.report.Dimension = len(vec)
		r.ix.logger.Info("index_provisioned",
			slog.Int("dimension", len(vec)),
			slog.String("metric", string(spec.Metric)),
			slog.String("model", r.ix.embedder.ModelName()))

		p.vector = vec
		if err := r.storeBatch(ctx, []*pending{p}); err != nil {
			return err
		}
		next++
		break
	}

	rest := chunks[next:]
	if len(rest) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.ix.opts.Workers)
	for start := 0; start < len(rest); start += r.ix.opts.BatchSize {
		batch := rest[start:min(start+r.ix.opts.BatchSize, len(rest))]
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return r.embedBatch(gctx, batch)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// embedBatch returns an error only when the whole run must stop.
func (r *run) embedBatch(ctx context.Context, batch []*pending) error {
	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = p.chunk.Text
	}
	vecs, err := r.ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if ctx.Err() != nil || isAbort(err) {
			return err
		}
		for _, p := range batch {
			r.chunkFailed(p, err)
		}
		return nil
	}
	if len(vecs) != len(batch) {
		err := errors.New(errors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedder returned %d vectors for %d texts", len(vecs), len(batch)), nil)
		for _, p := range batch {
			r.chunkFailed(p, err)
		}
		return nil
	}

	for i, p := range batch {
		if len(vecs[i]) != r.report.Dimension {
			return errors.DimensionMismatch(r.report.Dimension, len(vecs[i])).
				WithDetail("document", p.chunk.SourceID).
				WithDetail("model", r.ix.embedder.ModelName())
		}
		p.vector = vecs[i]
	}
	return r.storeBatch(ctx, batch)
}

func (r *run) storeBatch(ctx context.Context, batch []*pending) error {
	records := make([]store.Record, len(batch))
	for i, p := range batch {
		records[i] = p.record()
	}

	res, err := r.ix.store.UpsertAll(ctx, records)
	if err != nil {
		if ctx.Err() != nil || isAbort(err) {
			return err
		}
		for _, p := range batch {
			r.chunkFailed(p, err)
		}
		return nil
	}

	r.mu.Lock()
	r.report.ChunksProcessed += len(res.Succeeded)
	r.done += len(res.Succeeded)
	r.mu.Unlock()

	for _, p := range batch {
		if ferr, ok := res.Failed[p.chunk.ID]; ok {
			if isAbort(ferr) {
				return ferr
			}
			r.chunkFailed(p, ferr)
		}
	}
	r.progress()
	return nil
}

func (r *run) progress() {
	r.mu.Lock()
	done, total := r.done, r.total
	r.mu.Unlock()
	r.ix.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: done, Total: total})
}

func (r *run) chunkFailed(p *pending, err error) {
	r.mu.Lock()
	r.report.ChunksSkipped++
	r.done++
	r.report.Failures = append(r.report.Failures, Failure{Document: p.chunk.SourceID, Ordinal: p.chunk.Ordinal, Err: err})
	r.mu.Unlock()

	r.ix.logger.Warn("chunk_skipped",
		slog.String("document", p.chunk.SourceID),
		slog.Int("ordinal", p.chunk.Ordinal),
		slog.String("code", errors.GetCode(err)),
		slog.String("error", err.Error()))
	r.ix.renderer.AddError(ui.ErrorEvent{File: fmt.Sprintf("%s#%d", p.chunk.SourceID, p.chunk.Ordinal), Err: err, IsWarn: true})
}

func (r *run) fileFailed(id string, err error) {
	r.report.FilesSkipped++
	r.report.FilesFailed++
	r.report.Failures = append(r.report.Failures, Failure{Document: id, Ordinal: -1, Err: err})

	r.ix.logger.Warn("document_skipped",
		slog.String("document", id),
		slog.String("code", errors.GetCode(err)),
		slog.String("error", err.Error()))
	r.ix.renderer.AddError(ui.ErrorEvent{File: id, Err: err, IsWarn: true})
}

func (r *run) finish(err error) (*Report, error) {
	r.mu.Lock()
	report := r.report
	r.mu.Unlock()
	report.Duration = time.Since(r.start)

	attrs := []any{
		slog.String("source", report.Source),
		slog.Int("files", report.FilesProcessed),
		slog.Int("files_skipped", report.FilesSkipped),
		slog.Int("chunks", report.ChunksProcessed),
		slog.Int("chunks_skipped", report.ChunksSkipped),
		slog.Int("chunks_replaced", report.ChunksReplaced),
		slog.Int("dimension", report.Dimension),
		slog.Int64("duration_scan_ms", r.timing.scan.Milliseconds()),
		slog.Int64("duration_chunk_ms", r.timing.chunk.Milliseconds()),
		slog.Int64("duration_embed_ms", r.timing.embed.Milliseconds()),
		slog.Duration("duration", report.Duration),
	}
	if err != nil {
		r.ix.logger.Error("ingest_aborted", append(attrs, slog.String("error", err.Error()))...)
		return &report, err
	}

	r.ix.logger.Info("ingest_complete", attrs...)
	r.ix.renderer.Complete(ui.CompletionStats{
		Files:    report.FilesProcessed,
		Chunks:   report.ChunksProcessed,
		Duration: report.Duration,
		Errors:   report.FilesFailed,
		Warnings: report.ChunksSkipped,
		Stages: ui.StageTimings{
			Scan:  r.timing.scan,
			Chunk: r.timing.chunk,
			Embed: r.timing.embed,
		},
		Embedder: ui.EmbedderInfo{
			Model:      r.ix.embedder.ModelName(),
			Dimensions: report.Dimension,
		},
	})
	return &report, nil
}

// isAbort reports errors that would fail every remaining item as well:
// configuration problems, a rejected API key or an unusable store.
// Callers check their own context separately.
func isAbort(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, store.ErrClosed) || stderrors.Is(err, store.ErrIndexNotCreated) {
		return true
	}
	return errors.IsFatal(err) || errors.IsAuthFailure(err)
}
