package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// TUIRenderer draws ingest progress with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *ingestModel
	tracker *ProgressTracker
	started bool
	done    chan struct{}
}

var _ Renderer = (*TUIRenderer)(nil)

// NewTUIRenderer fails when the output is not a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}
	tracker := NewProgressTracker()
	model := newIngestModel(tracker, cfg.Source, GetStyles(cfg.NoColor))
	return &TUIRenderer{cfg: cfg, tracker: tracker, model: model, done: make(chan struct{})}, nil
}

// Start implements Renderer. The program stops on its own when ctx ends.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.tracker.Apply(event)
	r.send(refreshMsg{})
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.tracker.AddError(event)
	r.send(refreshMsg{})
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.tracker.Apply(ProgressEvent{Stage: StageComplete})
	r.send(completeMsg(stats))
}

// Stop implements Renderer and waits briefly for the final frame.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p == nil {
		return nil
	}

	p.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

type refreshMsg struct{}
type completeMsg CompletionStats

// ingestModel is the bubbletea model; all state lives in the tracker.
type ingestModel struct {
	tracker  *ProgressTracker
	source   string
	styles   Styles
	spinner  spinner.Model
	bar      progress.Model
	width    int
	complete *CompletionStats
	quitting bool
}

func newIngestModel(tracker *ProgressTracker, source string, styles Styles) *ingestModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Active

	return &ingestModel{
		tracker: tracker,
		source:  source,
		styles:  styles,
		spinner: s,
		bar:     progress.New(progress.WithSolidFill(ColorAccent), progress.WithWidth(40), progress.WithoutPercentage()),
		width:   80,
	}
}

// Init implements tea.Model.
func (m *ingestModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *ingestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-24, 20)
	case completeMsg:
		stats := CompletionStats(msg)
		m.complete = &stats
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *ingestModel) View() string {
	if m.complete != nil {
		return m.renderComplete(*m.complete)
	}
	if m.quitting {
		return "Cancelled.\n"
	}

	stats := m.tracker.Stats()
	lines := []string{m.renderStages(stats.Stage), ""}

	if stats.Total > 0 {
		unit := "documents"
		if stats.Stage == StageEmbedding {
			unit = "chunks"
		}
		lines = append(lines,
			fmt.Sprintf("%s %s", m.bar.ViewAs(stats.Progress), m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100))),
			m.styles.Label.Render(fmt.Sprintf("%d / %d %s  •  %.1f/s  •  ETA %s",
				stats.Current, stats.Total, unit, stats.Rate, formatDuration(stats.ETA))))
	} else {
		lines = append(lines, fmt.Sprintf("%s %s...", m.spinner.View(), stats.Stage))
	}

	if stats.CurrentFile != "" {
		lines = append(lines, m.styles.Dim.Render(truncatePath(stats.CurrentFile, m.width-8)))
	}
	if stats.WarnCount > 0 || stats.ErrorCount > 0 {
		lines = append(lines, "", m.renderProblems(stats))
	}

	title := "docrag ingest"
	if m.source != "" {
		title += " • " + m.source
	}
	width := max(m.width-4, 40)
	return m.styles.Header.Render(title) + "\n" + m.styles.Panel.Width(width).Render(strings.Join(lines, "\n")) + "\n"
}

func (m *ingestModel) renderStages(current Stage) string {
	stages := []Stage{StageScanning, StageChunking, StageEmbedding}
	parts := make([]string, len(stages))
	for i, s := range stages {
		switch {
		case s < current:
			parts[i] = m.styles.Success.Render("● " + s.String())
		case s == current:
			parts[i] = m.styles.Active.Render(m.spinner.View() + " " + s.String())
		default:
			parts[i] = m.styles.Dim.Render("○ " + s.String())
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *ingestModel) renderProblems(stats ProgressStats) string {
	var parts []string
	if stats.ErrorCount > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d files failed", stats.ErrorCount)))
	}
	if stats.WarnCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d skipped", stats.WarnCount)))
	}
	line := strings.Join(parts, "  ")
	if stats.LastError != "" {
		line += "\n" + m.styles.Dim.Render(truncatePath(stats.LastError, m.width-8))
	}
	return line
}

func (m *ingestModel) renderComplete(stats CompletionStats) string {
	lines := []string{
		m.styles.Success.Render("✓ Ingest complete"),
		"",
		fmt.Sprintf("%s %d", m.styles.Label.Render("Files:   "), stats.Files),
		fmt.Sprintf("%s %d", m.styles.Label.Render("Chunks:  "), stats.Chunks),
		fmt.Sprintf("%s %s", m.styles.Label.Render("Duration:"), formatDuration(stats.Duration)),
	}
	if stats.Embedder.Model != "" {
		lines = append(lines, fmt.Sprintf("%s %s (%d dims)", m.styles.Label.Render("Embedder:"), stats.Embedder.Model, stats.Embedder.Dimensions))
	}
	if stats.Errors > 0 {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d files failed", stats.Errors)))
	}
	if stats.Warnings > 0 {
		lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d chunks skipped", stats.Warnings)))
	}
	return m.styles.Panel.Width(max(m.width-4, 40)).Render(strings.Join(lines, "\n")) + "\n"
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// truncatePath keeps the tail of s, which holds the file name.
func truncatePath(s string, maxLen int) string {
	if maxLen < 4 || len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen+3:]
}
