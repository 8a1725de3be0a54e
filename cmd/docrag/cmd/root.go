// Package cmd provides the CLI commands for docrag.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/pkg/version"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configFile string
	projectDir string
	debug      bool
	offline    bool
	plain      bool
	noColor    bool
}

// NewRootCmd creates the root command for the docrag CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "docrag",
		Short: "Ingest documents and answer questions from them",
		Long: `docrag chunks documents, embeds them and stores the vectors so that
questions can be answered from the most relevant passages.

  docrag ingest ./docs            index a folder (or minio://, s3:// prefix)
  docrag ask "how long do cats sleep?"
  docrag chat                     conversation with memory
  docrag serve                    MCP server over stdio`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("docrag version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configFile, "config", "c", "", "Config file (default: .docrag.yaml in the project)")
	pf.StringVarP(&opts.projectDir, "project", "C", ".", "Project directory holding config and local stores")
	pf.BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.docrag/logs/ and stderr")
	pf.BoolVar(&opts.offline, "offline", false, "Use static embeddings and extractive answers (no network)")
	pf.BoolVar(&opts.plain, "plain", false, "Plain text output, no TUI")
	pf.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(newIngestCmd(opts))
	cmd.AddCommand(newAskCmd(opts))
	cmd.AddCommand(newChatCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newLogsCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, errors.FormatForCLI(err))
		slog.LogAttrs(context.Background(), slog.LevelDebug, "command_failed", errors.LogAttrs(err)...)
	}
	return err
}
