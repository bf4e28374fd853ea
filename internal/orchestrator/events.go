package orchestrator

import (
	"time"

	"github.com/brensch/tripparquet/internal/shard"
)

// EventKind distinguishes scheduler notifications.
type EventKind int

const (
	// EventState is sent on every task state change.
	EventState EventKind = iota
	// EventProgress is sent after every chunk written during a fetch.
	EventProgress
	// EventAbort is sent once, when the circuit breaker trips.
	EventAbort
)

// Event is a notification about a task or the run. Key is zero for EventAbort.
type Event struct {
	Kind     EventKind
	Key      shard.Key
	State    State
	FailedIn Stage
	Err      error
	Written  int64
	Total    int64
	Rows     int64
	Duration time.Duration
}

// Observer receives scheduler events. Observe is called from task goroutines
// concurrently and must not block for long.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans an event out to each non-nil observer in order.
type Observers []Observer

func (o Observers) Observe(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(e)
		}
	}
}
