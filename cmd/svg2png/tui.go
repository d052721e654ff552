package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	pathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// maxShownResults bounds the per-file lines kept on screen.
const maxShownResults = 10

type resultMsg Result

type doneMsg struct{}

type batchModel struct {
	cancel   context.CancelFunc
	progress progress.Model
	spinner  spinner.Model
	recent   []Result
	total    int
	done     int
	failed   int
	finished bool
}

func newBatchModel(total int, cancel context.CancelFunc) *batchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return &batchModel{
		cancel:   cancel,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner:  s,
		total:    total,
	}
}

func (m *batchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *batchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancel()
		}

	case resultMsg:
		m.done++
		if msg.Err != nil {
			m.failed++
		}
		m.recent = append(m.recent, Result(msg))
		if len(m.recent) > maxShownResults {
			m.recent = m.recent[1:]
		}
		return m, m.progress.SetPercent(float64(m.done) / float64(m.total))

	case doneMsg:
		m.finished = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *batchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("svg2png"))
	b.WriteString(" ")
	if m.finished {
		b.WriteString(fmt.Sprintf("%d/%d rendered", m.done-m.failed, m.total))
	} else {
		b.WriteString(m.spinner.View())
		b.WriteString(fmt.Sprintf(" %d/%d", m.done, m.total))
	}
	b.WriteString("\n\n")

	for _, r := range m.recent {
		b.WriteString(formatResult(r))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.progress.View())
	b.WriteString("\n")
	if !m.finished {
		b.WriteString(helpStyle.Render("q cancel"))
		b.WriteString("\n")
	}
	return b.String()
}

func formatResult(r Result) string {
	if r.Err != nil {
		return errorStyle.Render("✗ ") + pathStyle.Render(r.InputPath) + errorStyle.Render(": "+r.Err.Error())
	}
	return okStyle.Render("✓ ") + pathStyle.Render(r.InputPath) + " → " + r.OutputPath +
		helpStyle.Render(fmt.Sprintf(" (%d bytes, %s)", r.Bytes, r.Duration.Round(time.Millisecond)))
}

// runWithTUI renders the batch with a progress display on out. Quitting the
// display cancels the batch; it returns once every worker has stopped.
func runWithTUI(ctx context.Context, in io.Reader, out io.Writer, total int, batch func(ctx context.Context, progress func(Result)) []Result) []Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newBatchModel(total, cancel),
		tea.WithInput(in), tea.WithOutput(out), tea.WithContext(ctx))

	done := make(chan []Result, 1)
	go func() {
		results := batch(ctx, func(r Result) { p.Send(resultMsg(r)) })
		p.Send(doneMsg{})
		done <- results
	}()

	if _, err := p.Run(); err != nil {
		cancel()
	}
	return <-done
}

// printProgress writes one plain line per result.
func printProgress(w io.Writer) func(Result) {
	return func(r Result) {
		if r.Err != nil {
			fmt.Fprintf(w, "FAIL %s: %v\n", r.InputPath, r.Err)
			return
		}
		fmt.Fprintf(w, "ok   %s -> %s (%d bytes, %s)\n", r.InputPath, r.OutputPath, r.Bytes, r.Duration.Round(time.Millisecond))
	}
}
