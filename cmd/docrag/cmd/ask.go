package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/errors"
)

type askOptions struct {
	jsonOutput  bool
	showSources bool
}

func newAskCmd(g *globalOptions) *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer a question from the indexed documents",
		Long: `Retrieve the passages closest to the question and ask the completion
model to answer from them only. When no passage clears the similarity
cutoff the model is not called and docrag says it could not find the
answer.`,
		Example: `  docrag ask how long do cats sleep
  docrag ask "what is the refund policy?" --json
  docrag --offline ask "which port does the server use?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAsk(ctx, cmd, g, splitArgs(args), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output the answer as JSON")
	cmd.Flags().BoolVar(&opts.showSources, "sources", true, "List the passages the answer is based on")

	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, g *globalOptions, question string, opts askOptions) error {
	if question == "" {
		return errors.New(errors.ErrCodeQueryEmpty, "question is empty", nil)
	}

	a, err := newApp(ctx, g, false)
	if err != nil {
		return err
	}
	defer a.Close()

	// A one-shot question has no conversation to remember.
	planner, err := a.Planner(-1)
	if err != nil {
		return err
	}
	warnIfEmpty(ctx, cmd, a)

	ans, err := planner.Answer(ctx, question)
	if err != nil {
		return err
	}

	r := a.answerRenderer(cmd.OutOrStdout(), opts.showSources)
	view := answerView(question, ans)
	if opts.jsonOutput {
		return r.RenderJSON(view)
	}
	r.RenderAnswer(view)
	return nil
}

// warnIfEmpty tells the user on stderr that nothing has been ingested yet.
func warnIfEmpty(ctx context.Context, cmd *cobra.Command, a *app) {
	n, err := a.store.Count(ctx)
	if err == nil && n == 0 {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "The index is empty. Run 'docrag ingest <path>' first.")
	}
}
