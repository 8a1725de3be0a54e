package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/index"
	"github.com/Aman-CERP/docrag/internal/source"
	"github.com/Aman-CERP/docrag/internal/ui"
)

type ingestOptions struct {
	extensions []string
	jsonOutput bool
}

func newIngestCmd(g *globalOptions) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <path | minio://bucket/prefix | s3://bucket/prefix>",
		Short: "Chunk, embed and store documents",
		Long: `Ingest every document under a folder or bucket prefix.

Each file is split into passages, every passage is embedded and stored
under an id derived from its source and text, so ingesting the same
content twice leaves the index unchanged.

Files that cannot be read or extracted, and passages the embedding
provider refuses after retries, are skipped and reported. A dimension
mismatch with the existing index or a credential failure stops the run.`,
		Example: `  docrag ingest ./docs
  docrag ingest ./docs --ext .md,.txt
  docrag ingest minio://handbook/hr
  docrag ingest s3://corp-docs/policies --plain`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIngest(ctx, cmd, g, args[0], opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.extensions, "ext", nil, "Extensions to ingest (default from config: .txt,.md,.pdf)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the ingest report as JSON")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, g *globalOptions, uri string, opts ingestOptions) error {
	a, err := newApp(ctx, g, false)
	if err != nil {
		return err
	}
	defer a.Close()

	src, err := openSource(ctx, a, uri)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	renderer := a.renderer(out, src.Name())
	if opts.jsonOutput {
		renderer = ui.NopRenderer{}
	}
	ix, err := a.Indexer(renderer)
	if err != nil {
		return err
	}

	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start progress display: %w", err)
	}
	report, ingestErr := ix.IngestSource(ctx, src, opts.extensions)
	_ = renderer.Stop()

	if report != nil {
		a.logger.Info("ingest_report",
			slog.String("source", report.Source),
			slog.Int("files", report.FilesProcessed),
			slog.Int("files_skipped", report.FilesSkipped),
			slog.Int("chunks", report.ChunksProcessed),
			slog.Int("chunks_skipped", report.ChunksSkipped))
		if opts.jsonOutput {
			if err := renderJSON(cmd, reportJSON(report)); err != nil {
				return err
			}
		}
	}
	return ingestErr
}

// openSource resolves a local path (relative to the working directory) or
// a bucket URI.
func openSource(ctx context.Context, a *app, uri string) (source.Source, error) {
	scheme, _, _, err := source.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if scheme == "" {
		folder, err := source.NewFolderSource(uri, a.folderOptions())
		if err != nil {
			return nil, err
		}
		return folder, nil
	}
	return source.Open(ctx, uri, a.sourceConfig())
}

type reportOutput struct {
	Source          string   `json:"source"`
	FilesProcessed  int      `json:"files_processed"`
	FilesSkipped    int      `json:"files_skipped"`
	FilesFailed     int      `json:"files_failed"`
	ChunksProcessed int      `json:"chunks_processed"`
	ChunksSkipped   int      `json:"chunks_skipped"`
	Dimension       int      `json:"dimension"`
	DurationMS      int64    `json:"duration_ms"`
	Failures        []string `json:"failures,omitempty"`
}

func reportJSON(r *index.Report) reportOutput {
	out := reportOutput{
		Source:          r.Source,
		FilesProcessed:  r.FilesProcessed,
		FilesSkipped:    r.FilesSkipped,
		FilesFailed:     r.FilesFailed,
		ChunksProcessed: r.ChunksProcessed,
		ChunksSkipped:   r.ChunksSkipped,
		Dimension:       r.Dimension,
		DurationMS:      r.Duration.Milliseconds(),
	}
	for _, f := range r.Failures {
		out.Failures = append(out.Failures, f.String())
	}
	return out
}

// splitArgs joins positional words into one question or query.
func splitArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
