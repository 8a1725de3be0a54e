package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/query"
)

type searchOptions struct {
	limit      int
	minScore   float64
	jsonOutput bool
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "List the passages most similar to a query",
		Long: `Embed the query and list the closest passages with their similarity
scores. No completion model is called.`,
		Example: `  docrag search cat sleep
  docrag search "vacation days" --limit 10 --min-score 0.2
  docrag search onboarding --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, g, splitArgs(args), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of passages (default from config)")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Similarity cutoff; negative disables it (default from config)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output passages as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, g *globalOptions, q string, opts searchOptions) error {
	if q == "" {
		return errors.New(errors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	if opts.limit < 0 {
		return errors.ValidationError("--limit must not be negative", nil)
	}

	a, err := newApp(ctx, g, false)
	if err != nil {
		return err
	}
	defer a.Close()

	// Retrieval never calls the completer, so none is built here.
	planner, err := query.NewPlanner(query.Dependencies{
		Embedder: a.embedder,
		Store:    a.store,
		Logger:   a.logger,
	}, a.plannerOptions(-1))
	if err != nil {
		return err
	}
	warnIfEmpty(ctx, cmd, a)

	records, err := planner.Retrieve(ctx, q, opts.limit, opts.minScore)
	if err != nil {
		return err
	}
	a.logger.Info("search_complete", slog.String("query", q), slog.Int("results", len(records)))

	r := a.answerRenderer(cmd.OutOrStdout(), true)
	found := hits(records)
	if opts.jsonOutput {
		return r.RenderJSON(found)
	}
	r.RenderHits(q, found)
	return nil
}
