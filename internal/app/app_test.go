package app

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/tripparquet/internal/orchestrator"
	"github.com/brensch/tripparquet/internal/shard"
)

func stateMsg(k shard.Key, s orchestrator.State, err error) ShardMsg {
	return ShardMsg{Event: orchestrator.Event{Kind: orchestrator.EventState, Key: k, State: s, Err: err, Duration: time.Second}, At: time.Now()}
}

func TestRunModelTracksShards(t *testing.T) {
	a := shard.Key{Category: shard.Yellow, Year: 2019, Month: 1}
	b := shard.Key{Category: shard.Yellow, Year: 2019, Month: 2}
	m := NewRunModel([]shard.Key{a, b, a}, nil)
	assert.Equal(t, 2, m.total)

	m.Update(stateMsg(a, orchestrator.Fetching, nil))
	m.Update(ShardMsg{Event: orchestrator.Event{Kind: orchestrator.EventProgress, Key: a, Written: 512, Total: 1024}})
	assert.InDelta(t, 0.5, m.shards[a].Progress, 1e-9)
	assert.Contains(t, m.View(), a.Stem())

	m.Update(stateMsg(a, orchestrator.Done, nil))
	m.Update(stateMsg(b, orchestrator.Failed, errors.New("bad status '404 Not Found'")))
	assert.Equal(t, 2, m.finished)
	assert.InDelta(t, 1.0, m.Percent(), 1e-9)
	assert.Contains(t, m.View(), "404 Not Found")

	m.Update(ShardMsg{Event: orchestrator.Event{Kind: orchestrator.EventAbort}})
	assert.Contains(t, m.View(), "Aborting")
}

func TestRunModelQuitCancelsThenFinishes(t *testing.T) {
	cancelled := false
	m := NewRunModel([]shard.Key{{Category: shard.Green, Year: 2020, Month: 1}}, func() { cancelled = true })

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, cancelled)
	assert.Equal(t, Cancelling, m.State)

	_, cmd := m.Update(RunFinishedMsg{Result: &orchestrator.Result{}, Start: time.Now(), End: time.Now()})
	assert.Equal(t, Finished, m.State)
	require.NotNil(t, m.Result)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestSummaryListsFailures(t *testing.T) {
	res := &orchestrator.Result{
		Aborted: true,
		Records: []*orchestrator.TaskRecord{
			{Key: shard.Key{Category: shard.FHV, Year: 2019, Month: 1}, State: orchestrator.Failed, FailedIn: orchestrator.StageFetch, Err: errors.New("timeout")},
			{Key: shard.Key{Category: shard.FHV, Year: 2019, Month: 2}, State: orchestrator.Skipped},
		},
	}
	out := Summary(res)
	assert.Contains(t, out, "fhv/2019-01 (fetch): timeout")
	assert.Contains(t, out, "aborted")
}

type captureSender struct{ msgs []tea.Msg }

func (c *captureSender) Send(msg tea.Msg) { c.msgs = append(c.msgs, msg) }

func TestObserverForwardsEvents(t *testing.T) {
	s := &captureSender{}
	Observer{Program: s}.Observe(orchestrator.Event{Kind: orchestrator.EventAbort})
	require.Len(t, s.msgs, 1)
	_, ok := s.msgs[0].(ShardMsg)
	assert.True(t, ok)
}
