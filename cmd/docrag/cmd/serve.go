package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/mcp"
	"github.com/Aman-CERP/docrag/pkg/version"
)

type serveOptions struct {
	transport string
	addr      string
}

func newServeCmd(g *globalOptions) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server exposing search and ask tools",
		Long: `Serve the index to MCP clients. The stdio transport is meant to be
launched by the client; stdout then carries protocol frames only and all
logs go to ~/.docrag/logs/docrag.log.

Each tool call is answered on its own. Clients keep their own
conversation, so no exchanges are remembered between calls.`,
		Example: `  docrag serve
  docrag serve --transport http --addr 127.0.0.1:8765`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, g, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "", "Transport: stdio or http (default from config)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address for the http transport (default from config)")

	return cmd
}

func runServe(ctx context.Context, g *globalOptions, opts serveOptions) error {
	a, err := newApp(ctx, g, true)
	if err != nil {
		return err
	}
	defer a.Close()

	planner, err := a.Planner(-1)
	if err != nil {
		return err
	}

	cfg := a.cfg
	srv, err := mcp.NewServer(cfg.Server.Name, mcp.Dependencies{
		Planner: planner,
		Store:   a.store,
		Status: mcp.Status{
			Store:             cfg.Store.Backend,
			EmbeddingProvider: cfg.Embeddings.Provider,
			EmbeddingModel:    a.embedder.ModelName(),
			Dimensions:        a.embedder.Dimensions(),
			CompletionModel:   cfg.Completion.Provider + "/" + a.completer.ModelName(),
			K:                 cfg.Retrieval.K,
			MinScore:          cfg.Retrieval.MinScore,
		},
		Logger: a.logger.With("component", "mcp", "version", version.Short()),
	})
	if err != nil {
		return err
	}

	transport := opts.transport
	if transport == "" {
		transport = cfg.Server.Transport
	}
	addr := opts.addr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	return srv.Serve(ctx, transport, addr)
}
