package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/query"
	"github.com/Aman-CERP/docrag/internal/ui"
)

const chatHelp = `Commands:
  /reset    forget the conversation
  /history  show remembered exchanges
  /sources  toggle the source list
  /exit     leave (Ctrl+D works too)`

type chatOptions struct {
	memory      int
	showSources bool
}

func newChatCmd(g *globalOptions) *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions in a conversation that remembers recent exchanges",
		Long: `Start an interactive session. Every question is answered from the
indexed documents; the most recent exchanges are replayed to the model so
follow-up questions can refer to earlier answers.

` + chatHelp,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, cmd, g, opts)
		},
	}

	cmd.Flags().IntVar(&opts.memory, "memory", 0, "Exchanges to remember (default from config; negative disables)")
	cmd.Flags().BoolVar(&opts.showSources, "sources", true, "List the passages each answer is based on")

	return cmd
}

func runChat(ctx context.Context, cmd *cobra.Command, g *globalOptions, opts chatOptions) error {
	a, err := newApp(ctx, g, false)
	if err != nil {
		return err
	}
	defer a.Close()

	planner, err := a.Planner(opts.memory)
	if err != nil {
		return err
	}
	warnIfEmpty(ctx, cmd, a)

	s := &chatSession{
		planner:     planner,
		in:          cmd.InOrStdin(),
		out:         cmd.OutOrStdout(),
		styles:      ui.GetStyles(g.noColor || g.plain || !ui.IsTTY(cmd.OutOrStdout())),
		showSources: opts.showSources,
		noColor:     g.noColor || g.plain,
	}
	return s.run(ctx)
}

// chatSession is one REPL over a planner.
type chatSession struct {
	planner     *query.Planner
	in          io.Reader
	out         io.Writer
	styles      ui.Styles
	showSources bool
	noColor     bool
}

func (s *chatSession) run(ctx context.Context) error {
	_, _ = fmt.Fprintln(s.out, s.styles.Header.Render("docrag chat")+"  (type /help for commands)")

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		if ctx.Err() != nil {
			return nil
		}
		_, _ = fmt.Fprint(s.out, s.styles.Label.Render("> "))
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(s.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := s.command(line); quit {
				return nil
			}
			continue
		}

		ans, err := s.planner.Answer(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// A failed question leaves the session usable.
			_, _ = fmt.Fprint(s.out, errors.FormatForCLI(err))
			continue
		}
		ui.NewAnswerRenderer(s.out, s.noColor, s.showSources).RenderAnswer(answerView(line, ans))
		_, _ = fmt.Fprintln(s.out)
	}
}

// command handles a slash command and reports whether to leave.
func (s *chatSession) command(line string) bool {
	switch strings.Fields(line)[0] {
	case "/exit", "/quit":
		return true
	case "/reset":
		s.planner.Reset()
		_, _ = fmt.Fprintln(s.out, "Conversation cleared.")
	case "/history":
		exchanges := s.planner.Memory().Exchanges()
		if len(exchanges) == 0 {
			_, _ = fmt.Fprintln(s.out, "Nothing remembered yet.")
		}
		for i, ex := range exchanges {
			_, _ = fmt.Fprintf(s.out, "%d. Q: %s\n   A: %s\n", i+1, ex.Question, ui.Snippet(ex.Answer, 120))
		}
	case "/sources":
		s.showSources = !s.showSources
		state := "off"
		if s.showSources {
			state = "on"
		}
		_, _ = fmt.Fprintf(s.out, "Sources %s.\n", state)
	case "/help":
		_, _ = fmt.Fprintln(s.out, chatHelp)
	default:
		_, _ = fmt.Fprintf(s.out, "Unknown command %s.\n%s\n", line, chatHelp)
	}
	return false
}
