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
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer draws a live indexing panel with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *indexingModel
	tracker *ProgressTracker
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer fails when the output is not a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newIndexingModel(tracker, cfg.ProjectDir)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	ctx, r.cancel = context.WithCancel(ctx)
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

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Stop implements Renderer. It waits up to two seconds for the program to
// exit so an unresponsive terminal cannot hang shutdown.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p, cancel := r.program, r.cancel
	r.mu.Unlock()

	if p == nil {
		return nil
	}
	p.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

type refreshMsg struct{}
type completeMsg CompletionStats
type tickMsg time.Time

// indexingModel is the bubbletea model. It reads everything from the
// tracker on each frame.
type indexingModel struct {
	tracker    *ProgressTracker
	width      int
	quitting   bool
	complete   bool
	stats      CompletionStats
	spinner    spinner.Model
	bar        progress.Model
	styles     Styles
	projectDir string
}

func newIndexingModel(tracker *ProgressTracker, projectDir string) *indexingModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	return &indexingModel{
		tracker:    tracker,
		spinner:    s,
		bar:        progress.New(progress.WithSolidFill(ColorLime), progress.WithWidth(50), progress.WithoutPercentage()),
		styles:     DefaultStyles(),
		width:      80,
		projectDir: projectDir,
	}
}

// Init implements tea.Model.
func (m *indexingModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *indexingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 20)
	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit
	case tickMsg:
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *indexingModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	width := max(m.width-4, 40)
	st := m.tracker.Stats()
	divider := m.styles.Border.Render(strings.Repeat("─", width))

	sections := []string{
		m.renderStages(st.Stage),
		divider,
		m.renderProgress(st),
		m.renderRate(st),
	}
	if st.CurrentFile != "" {
		sections = append(sections, divider, m.styles.Dim.Render(truncateFilePath(st.CurrentFile, width-2)))
	}

	title := "amanctx indexer"
	if m.projectDir != "" {
		title += " • " + m.projectDir
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		panel.Render(strings.Join(sections, "\n")),
	) + "\n" + m.renderStatusBar(st)
}

var pipelineStages = []Stage{StageScanning, StageChunking, StageIndexing}

func (m *indexingModel) renderStages(current Stage) string {
	parts := make([]string, 0, len(pipelineStages))
	for _, s := range pipelineStages {
		switch {
		case s < current:
			parts = append(parts, m.styles.Success.Render("● "+s.String()))
		case s == current:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+s.String()))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+s.String()))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *indexingModel) renderProgress(st ProgressStats) string {
	if st.Total == 0 {
		return fmt.Sprintf("%s %s...", m.spinner.View(), st.Stage)
	}
	unit := "files"
	if st.Stage == StageIndexing {
		unit = "records"
	}
	return fmt.Sprintf("%s  %s\n%s",
		m.bar.ViewAs(st.Progress),
		m.styles.Active.Render(fmt.Sprintf("%3.0f%%", st.Progress*100)),
		m.styles.Label.Render(fmt.Sprintf("%d / %d %s", st.Current, st.Total, unit)))
}

func (m *indexingModel) renderRate(st ProgressStats) string {
	parts := []string{m.styles.Speed.Render(fmt.Sprintf("Rate: %.0f/s (peak %.0f)", st.Rate, st.PeakRate))}
	if st.ETA > 0 {
		parts = append(parts, m.styles.Label.Render("ETA: "+formatDuration(st.ETA)))
	}
	return strings.Join(parts, m.styles.Dim.Render("  •  "))
}

func (m *indexingModel) renderStatusBar(st ProgressStats) string {
	var parts []string
	if st.Warnings > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", st.Warnings)))
	}
	if st.Errors > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", st.Errors)))
	}
	parts = append(parts, m.styles.Dim.Render("q to quit"))
	return strings.Join(parts, m.styles.Dim.Render("  │  "))
}

func (m *indexingModel) renderComplete() string {
	s := m.stats
	row := func(label string, value any) string {
		return fmt.Sprintf("%-10s %s", m.styles.Label.Render(label), m.styles.Active.Render(fmt.Sprint(value)))
	}

	lines := []string{
		m.styles.Success.Render("✓ Indexing complete"),
		"",
		row("Scope:", s.Scope),
		row("Files:", fmt.Sprintf("%d (%d failed)", s.Files, s.FilesFailed)),
		row("Records:", fmt.Sprintf("%d (%d failed)", s.Records, s.RecordsFailed)),
		row("Duration:", formatDuration(s.Duration)),
	}
	if s.Embedder.Provider != "" {
		lines = append(lines, row("Embedder:", s.Embedder.Provider+" / "+s.Embedder.Model))
	}
	if s.Errors > 0 {
		lines = append(lines, "", m.styles.Error.Render(fmt.Sprintf("✗ %d errors", s.Errors)))
	}
	if s.Warnings > 0 {
		lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", s.Warnings)))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorLime)).
		Padding(1, 2).
		Width(max(m.width-4, 40)).
		Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration prints 45s, 2m 5s or 1h 3m.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		m, s := int(d.Minutes()), int(d.Seconds())%60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// truncateFilePath keeps the file name and as much of the leading path as
// fits in maxLen.
func truncateFilePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen < 4 {
		return "..."
	}
	i := strings.LastIndex(path, "/")
	name := path[i+1:]
	if i < 0 || len(name)+4 > maxLen {
		return "..." + path[len(path)-maxLen+3:]
	}
	dir := path[:i]
	keep := maxLen - len(name) - 4
	return "..." + dir[len(dir)-keep:] + "/" + name
}

var _ Renderer = (*TUIRenderer)(nil)
