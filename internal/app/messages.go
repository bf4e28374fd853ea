package app

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/tripparquet/internal/orchestrator"
)

// --- Progress Messages ---

// ShardMsg carries one scheduler event into the program.
type ShardMsg struct {
	Event orchestrator.Event
	At    time.Time
}

// RunFinishedMsg signals that the scheduler returned.
type RunFinishedMsg struct {
	Result *orchestrator.Result
	Err    error
	Start  time.Time
	End    time.Time
}

func (s ShardMsg) String() string {
	return fmt.Sprintf("Shard %s: %s", s.Event.Key, s.Event.State)
}

func (r RunFinishedMsg) String() string {
	return fmt.Sprintf("RunFinished in %s", r.End.Sub(r.Start).Round(time.Millisecond))
}

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Observer forwards scheduler events to a running program.
type Observer struct {
	Program Sender
}

func (o Observer) Observe(e orchestrator.Event) {
	o.Program.Send(ShardMsg{Event: e, At: time.Now()})
}
