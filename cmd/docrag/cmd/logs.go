package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/logging"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	logFile string
}

func newLogsCmd(g *globalOptions) *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show docrag logs",
		Long: `Show the last entries of the docrag log file, or follow it.

The file is logging.file from the configuration, or
~/.docrag/logs/docrag.log.`,
		Example: `  docrag logs                     # last 50 entries
  docrag logs -f                  # follow in real time
  docrag logs --level warn        # warnings and errors only
  docrag logs --filter chunk_skipped`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.Context(), cmd, g, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of entries to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only entries matching this regular expression")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Log file to read")

	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, g *globalOptions, opts logsOptions) error {
	// A broken config must not hide the logs that explain it.
	var configured string
	if cfg, _, err := loadConfig(g); err == nil {
		configured = cfg.Logging.File
	}
	path, err := logging.FindLogFile(opts.logFile, configured)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		pattern, err = regexp.Compile(opts.filter)
		if err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: g.noColor || g.plain,
	}, out)

	_, _ = fmt.Fprintf(errOut, "Log file: %s\n", path)
	if !opts.follow {
		entries, err := viewer.Tail(path, opts.lines)
		if err != nil {
			return err
		}
		viewer.Print(entries)
		return nil
	}

	_, _ = fmt.Fprintln(errOut, "Following... (Ctrl+C to stop)")
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return follow(ctx, viewer, path, out)
}

func follow(ctx context.Context, viewer *logging.Viewer, path string, out io.Writer) error {
	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)
	go func() {
		errCh <- viewer.Follow(ctx, path, entries)
	}()

	for {
		select {
		case entry := <-entries:
			_, _ = fmt.Fprintln(out, viewer.FormatEntry(entry))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return nil
		}
	}
}
