package watcher

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/index"
	"github.com/Aman-CERP/docrag/internal/source"
)

// Ingester keeps one document's chunks current. *index.Indexer implements it.
type Ingester interface {
	IngestFile(ctx context.Context, doc source.Document) (*index.Report, error)
	RemoveDocument(ctx context.Context, id string) (int, error)
}

// Result describes how one event was applied.
type Result struct {
	Event   FileEvent
	Report  *index.Report // nil unless the file was ingested
	Removed int           // chunks purged for a deleted or renamed file
	Err     error
}

// Syncer applies watcher batches to an index.
//
// Created and modified files are re-ingested, which replaces their earlier
// chunks. Deleted and renamed-away files have their chunks purged; the new
// name of a rename arrives as its own create event.
type Syncer struct {
	ingester Ingester
	root     string
	logger   *slog.Logger

	// OnResult, when set, is called after every event.
	OnResult func(Result)
}

// NewSyncer returns a syncer for files below root.
func NewSyncer(ingester Ingester, root string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return &Syncer{ingester: ingester, root: abs, logger: logger}
}

// Run applies batches until the channel closes or ctx is done. It returns
// the first error that aborted an ingest; a cancelled ctx returns nil.
func (s *Syncer) Run(ctx context.Context, batches <-chan []FileEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			if err := s.Apply(ctx, batch); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// Apply handles one batch in order. It stops at the first aborting error.
func (s *Syncer) Apply(ctx context.Context, batch []FileEvent) error {
	for _, ev := range batch {
		res, abort := s.apply(ctx, ev)
		if s.OnResult != nil {
			s.OnResult(res)
		}
		if abort {
			return res.Err
		}
	}
	return nil
}

// apply reports abort for ingest errors, which the indexer only returns
// when every later file would fail too.
func (s *Syncer) apply(ctx context.Context, ev FileEvent) (Result, bool) {
	res := Result{Event: ev}
	switch ev.Operation {
	case OpCreate, OpModify:
		doc, err := source.FileDocument(s.root, filepath.Join(s.root, filepath.FromSlash(ev.Path)))
		if err != nil {
			res.Err = err
			if errors.GetCode(err) == errors.ErrCodeFileNotFound {
				// Gone again before the batch was applied.
				s.logger.Debug("watch_file_vanished", slog.String("path", ev.Path))
			} else {
				s.logger.Warn("watch_file_unreadable", slog.String("path", ev.Path), slog.String("error", err.Error()))
			}
			return res, false
		}
		report, err := s.ingester.IngestFile(ctx, doc)
		res.Report, res.Err = report, err
		if err != nil {
			s.logger.Error("watch_ingest_aborted",
				slog.String("path", ev.Path),
				slog.String("error", err.Error()))
			return res, true
		}
		s.logger.Info("watch_ingested",
			slog.String("path", ev.Path),
			slog.String("op", ev.Operation.String()),
			slog.Int("chunks", report.ChunksProcessed),
			slog.Int("chunks_skipped", report.ChunksSkipped),
			slog.Int("files_failed", report.FilesFailed))
	case OpDelete, OpRename:
		if ev.IsDir {
			return res, false
		}
		n, err := s.ingester.RemoveDocument(ctx, ev.Path)
		res.Removed, res.Err = n, err
		if err != nil {
			s.logger.Error("watch_remove_failed",
				slog.String("path", ev.Path),
				slog.String("error", err.Error()))
			return res, true
		}
		s.logger.Info("watch_document_removed",
			slog.String("path", ev.Path),
			slog.String("op", ev.Operation.String()),
			slog.Int("chunks", n))
	case OpIgnoreChange:
		s.logger.Info("watch_ignore_rules_reloaded", slog.String("path", ev.Path))
	}
	return res, false
}
