package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/ui"
	"github.com/Aman-CERP/docrag/internal/watcher"
)

type watchOptions struct {
	initial      bool
	forcePolling bool
}

func newWatchCmd(g *globalOptions) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch <path>",
		Short: "Re-ingest files as they change",
		Long: `Ingest a folder, then keep watching it and re-ingest every file that is
created or modified. Bursts of changes are coalesced before they are
applied.

An edited file replaces all of its earlier chunks. Deleted and renamed
files have their chunks removed from the index.`,
		Example: `  docrag watch ./docs
  docrag watch ./docs --initial=false --polling`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, g, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.initial, "initial", true, "Ingest the whole folder before watching")
	cmd.Flags().BoolVar(&opts.forcePolling, "polling", false, "Poll for changes instead of using file system events")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, g *globalOptions, path string, opts watchOptions) error {
	a, err := newApp(ctx, g, false)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	ix, err := a.Indexer(ui.NopRenderer{})
	if err != nil {
		return err
	}

	if opts.initial {
		report, err := ix.IngestFolder(ctx, path, nil)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Ingested %d files, %d chunks (%d files skipped, %d chunks skipped)\n",
			report.FilesProcessed, report.ChunksProcessed, report.FilesSkipped, report.ChunksSkipped)
	}

	w, err := watcher.New(watcher.Options{
		DebounceWindow:   config.MustDuration(a.cfg.Ingest.WatchDebounce),
		Extensions:       a.cfg.Ingest.Extensions,
		Exclude:          a.cfg.Ingest.Exclude,
		RespectGitignore: a.cfg.Ingest.RespectGitignore,
		IncludeHidden:    a.cfg.Ingest.IncludeHidden,
		ForcePolling:     opts.forcePolling,
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	syncer := watcher.NewSyncer(ix, path, a.logger)
	syncer.OnResult = func(res watcher.Result) { printWatchResult(out, res) }

	_, _ = fmt.Fprintf(out, "Watching %s (%s). Press Ctrl+C to stop.\n", path, w.Mode())
	a.logger.Info("watch_started", slog.String("path", path), slog.String("mode", w.Mode()))

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return w.Start(gctx, path)
	})
	eg.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case err, ok := <-w.Errors():
				if !ok {
					return nil
				}
				a.logger.Warn("watch_error", slog.String("error", err.Error()))
			}
		}
	})
	eg.Go(func() error {
		err := syncer.Run(gctx, w.Events())
		// Leaving Run ends the watch either way.
		_ = w.Stop()
		return err
	})

	err = eg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func printWatchResult(out io.Writer, res watcher.Result) {
	ev := res.Event
	switch {
	case res.Err != nil && res.Report == nil:
		_, _ = fmt.Fprintf(out, "%-7s %s: %v\n", ev.Operation, ev.Path, res.Err)
	case res.Report != nil:
		line := fmt.Sprintf("%-7s %s: %d chunks", ev.Operation, ev.Path, res.Report.ChunksProcessed)
		if res.Report.ChunksSkipped > 0 {
			line += fmt.Sprintf(", %d skipped", res.Report.ChunksSkipped)
		}
		if res.Report.FilesFailed > 0 {
			line += " (unreadable)"
		}
		_, _ = fmt.Fprintln(out, line)
	case ev.Operation == watcher.OpDelete || ev.Operation == watcher.OpRename:
		_, _ = fmt.Fprintf(out, "%-7s %s: %d chunks removed\n", ev.Operation, ev.Path, res.Removed)
	case ev.Operation == watcher.OpIgnoreChange:
		_, _ = fmt.Fprintf(out, "%-7s %s: ignore rules reloaded\n", ev.Operation, ev.Path)
	}
}
