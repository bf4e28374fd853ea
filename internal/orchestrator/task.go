package orchestrator

import (
	"fmt"
	"time"

	"github.com/brensch/tripparquet/internal/shard"
)

// State is the lifecycle position of a single shard task.
type State int

const (
	Pending State = iota
	Fetching
	Converting
	Done
	Skipped
	Failed
	NotAttempted
)

var stateNames = map[State]string{
	Pending:      "pending",
	Fetching:     "fetching",
	Converting:   "converting",
	Done:         "done",
	Skipped:      "skipped",
	Failed:       "failed",
	NotAttempted: "not_attempted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is allowed out of s.
func (s State) Terminal() bool {
	switch s {
	case Done, Skipped, Failed, NotAttempted:
		return true
	}
	return false
}

// Stage names the part of a task that failed.
type Stage string

const (
	StageNone    Stage = ""
	StageFetch   Stage = "fetch"
	StageConvert Stage = "convert"
)

// TaskRecord is the scheduler's view of one shard. Records are written only by
// the goroutine running the task and are safe to read once Run returns.
type TaskRecord struct {
	Key              shard.Key
	RemoteURL        string
	IntermediatePath string
	OutputPath       string
	State            State
	FailedIn         Stage
	Err              error
	Bytes            int64
	Rows             int64
	Duration         time.Duration
}

func newTaskRecord(k shard.Key, layout shard.Layout) *TaskRecord {
	return &TaskRecord{
		Key:              k,
		RemoteURL:        layout.RemoteURL(k),
		IntermediatePath: layout.IntermediatePath(k),
		OutputPath:       layout.OutputPath(k),
		State:            Pending,
	}
}

// transition moves the record to next. Leaving a terminal state is a programming error.
func (r *TaskRecord) transition(next State) {
	if r.State.Terminal() {
		panic(fmt.Sprintf("shard %s: illegal transition %s -> %s", r.Key, r.State, next))
	}
	r.State = next
}

// stage returns the stage a failure in the current state belongs to.
func (r *TaskRecord) stage() Stage {
	if r.State == Converting {
		return StageConvert
	}
	return StageFetch
}
