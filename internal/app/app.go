package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/tripparquet/internal/orchestrator"
	"github.com/brensch/tripparquet/internal/shard"
)

// --- Model ---
type ShardProgress struct {
	Name     string
	Status   string
	Progress float64
	Written  int64
	ErrMsg   string
	Start    time.Time
	Elapsed  time.Duration
}

// RunModel shows live progress of a scheduler run.
type RunModel struct {
	State           ViewState
	spinner         spinner.Model
	overallProgress progress.Model

	shards   map[shard.Key]*ShardProgress
	order    []shard.Key
	total    int
	finished int
	aborted  bool

	cancel   func()
	Result   *RunFinishedMsg
	Quitting bool

	termWidth  int
	termHeight int
}

// NewRunModel creates the view for keys. cancel is called when the user quits early.
func NewRunModel(keys []shard.Key, cancel func()) *RunModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := &RunModel{
		State:           Running,
		spinner:         s,
		overallProgress: progress.New(progress.WithDefaultGradient()),
		shards:          make(map[shard.Key]*ShardProgress, len(keys)),
		order:           make([]shard.Key, 0, len(keys)),
		total:           len(keys),
		cancel:          cancel,
		termWidth:       80,
		termHeight:      24,
	}
	for _, k := range keys {
		if _, ok := m.shards[k]; ok {
			continue
		}
		m.shards[k] = &ShardProgress{Name: k.Stem(), Status: orchestrator.Pending.String()}
		m.order = append(m.order, k)
	}
	m.total = len(m.order)
	return m
}

// --- Bubbletea Interface ---

func (m *RunModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			if m.State == Finished {
				m.Quitting = true
				return m, tea.Quit
			}
			// wait for the scheduler to unwind before quitting
			m.State = Cancelling
			if m.cancel != nil {
				m.cancel()
			}
		}
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height
		m.overallProgress.Width = max(0, m.termWidth-16)
	case ShardMsg:
		cmds = append(cmds, m.applyEvent(msg))
	case RunFinishedMsg:
		m.State = Finished
		m.Result = &msg
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case progress.FrameMsg:
		progModel, frameCmd := m.overallProgress.Update(msg)
		if newModel, ok := progModel.(progress.Model); ok {
			m.overallProgress = newModel
			cmds = append(cmds, frameCmd)
		}
	}
	return m, tea.Batch(cmds...)
}

func (m *RunModel) applyEvent(msg ShardMsg) tea.Cmd {
	e := msg.Event
	if e.Kind == orchestrator.EventAbort {
		m.aborted = true
		return nil
	}
	sp, ok := m.shards[e.Key]
	if !ok {
		return nil
	}
	switch e.Kind {
	case orchestrator.EventProgress:
		sp.Written = e.Written
		if e.Total > 0 {
			sp.Progress = float64(e.Written) / float64(e.Total)
		}
	case orchestrator.EventState:
		sp.Status = e.State.String()
		if e.State == orchestrator.Fetching {
			sp.Start = msg.At
		}
		if e.Err != nil {
			sp.ErrMsg = e.Err.Error()
		}
		if e.State.Terminal() {
			sp.Elapsed = e.Duration
			if e.State == orchestrator.Done || e.State == orchestrator.Skipped {
				sp.Progress = 1.0
			}
			m.finished++
			return m.overallProgress.SetPercent(m.Percent())
		}
	}
	return nil
}

// Percent is the share of shards in a terminal state.
func (m *RunModel) Percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.finished) / float64(m.total)
}

func (m *RunModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("--- NYC Trip Data Fetch ---"))
	b.WriteString("\n\n")
	b.WriteString(m.viewProgress())
	b.WriteString("\n")
	switch {
	case m.State == Cancelling:
		b.WriteString(infoStyle.Render("Cancelling, waiting for in-flight shards..."))
	case m.aborted:
		b.WriteString(errorStyle.Render("Aborting: too many consecutive failures."))
	case m.State == Running:
		b.WriteString(infoStyle.Render("Run in progress... 'q' or Ctrl+C to cancel."))
	}
	return b.String()
}

// --- View Helpers ---

func (m *RunModel) viewProgress() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s Shards %d/%d\n", m.spinner.View(), m.finished, m.total))
	b.WriteString(progressBarStyle.Render(m.overallProgress.View()))
	b.WriteString("\n\n")

	maxLines := m.termHeight - 10
	if maxLines < 1 {
		maxLines = 1
	}
	// in-flight and failed shards first, then the tail of the rest
	var rows []shard.Key
	for _, k := range m.order {
		st := m.shards[k].Status
		if st == orchestrator.Fetching.String() || st == orchestrator.Converting.String() || st == orchestrator.Failed.String() {
			rows = append(rows, k)
		}
	}
	if len(rows) > maxLines {
		rows = rows[len(rows)-maxLines:]
	}
	if len(rows) == 0 {
		return b.String()
	}

	b.WriteString(fileProgressHeaderStyle.Render(fmt.Sprintf("%-32s | %-14s | %-8s | %s", "Shard", "Status", "Fetched", "Elapsed")))
	b.WriteString("\n")
	for _, k := range rows {
		sp := m.shards[k]
		elapsedStr := ""
		if sp.Elapsed > 0 {
			elapsedStr = sp.Elapsed.Round(time.Millisecond).String()
		} else if !sp.Start.IsZero() {
			elapsedStr = time.Since(sp.Start).Round(time.Second).String() + "..."
		}
		b.WriteString(fmt.Sprintf("%-32s | %s | %-8s | %s", sp.Name, StatusWidth(sp.Status, 14), humanBytes(sp.Written), elapsedStr))
		if sp.ErrMsg != "" {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render(truncate("  -> Error: "+sp.ErrMsg, m.termWidth-1)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// --- Helpers ---
func humanBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1fG", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1fM", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fK", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%dB", n)
}

func truncate(s string, width int) string {
	if width <= 3 || len(s) <= width {
		return s
	}
	return s[:width-3] + "..."
}
