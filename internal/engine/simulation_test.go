package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/goalnet/internal/agents"
	"github.com/talgya/goalnet/internal/config"
	"github.com/talgya/goalnet/internal/tasks"
)

type countingCollector struct {
	clocks []float64
}

func (c *countingCollector) Collect(w *World) {
	c.clocks = append(c.clocks, w.Clock())
}

func testConfig(agentCount int, maxClock float64, seed int64) config.Config {
	cfg := config.Default()
	cfg.AgentCount = agentCount
	cfg.MaxClock = maxClock
	return cfg.WithSeed(seed)
}

func newScheduledWorld(t *testing.T, cfg config.Config, c Collector) *World {
	t.Helper()
	w, err := NewWorld(cfg, c)
	require.NoError(t, err)
	require.NoError(t, w.InitSchedules())
	return w
}

func assertSymmetric(t *testing.T, w *World) {
	t.Helper()
	net := w.Network()
	for _, id := range w.AgentIDs() {
		a := w.Agent(id)
		assert.Equal(t, net.Neighbors(id), a.Neighbors(), "agent %d", id)
		for _, nb := range a.Neighbors() {
			assert.True(t, net.HasEdge(nb, id))
			assert.True(t, w.Agent(nb).IsNeighbor(id))
		}
	}
}

func TestIsolatedScenario(t *testing.T) {
	w := newScheduledWorld(t, testConfig(10, 20, 200), nil)
	assert.Equal(t, 10, w.Network().NodeCount())
	assert.Equal(t, 0, w.Network().EdgeCount())

	require.NoError(t, w.Run())
	assert.Equal(t, StateHalted, w.State())
	assert.LessOrEqual(t, w.Clock(), 20.0)
	assert.GreaterOrEqual(t, w.Network().EdgeCount(), 0)

	for _, id := range w.AgentIDs() {
		assert.GreaterOrEqual(t, w.Agent(id).Wealth, 0.0)
	}
	assertSymmetric(t, w)
}

func TestClockNeverDecreases(t *testing.T) {
	w := newScheduledWorld(t, testConfig(30, 40, 5), nil)
	last := w.Clock()
	for {
		ev, ok, err := w.Tick()
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.GreaterOrEqual(t, w.Clock(), last)
		assert.Equal(t, ev.At, w.Clock())
		last = w.Clock()
	}

	// Halted worlds stay halted and untouched.
	clock := w.Clock()
	_, ok, err := w.Tick()
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, clock, w.Clock())
}

type runTrace struct {
	Events []Event
	Wealth map[agents.AgentID]float64
	Edges  int
}

func trace(t *testing.T, cfg config.Config, ticks int) runTrace {
	t.Helper()
	w := newScheduledWorld(t, cfg, nil)
	var tr runTrace
	for i := 0; i < ticks; i++ {
		ev, ok, err := w.Tick()
		require.NoError(t, err)
		if !ok {
			break
		}
		tr.Events = append(tr.Events, ev)
	}
	tr.Wealth = make(map[agents.AgentID]float64)
	for _, id := range w.AgentIDs() {
		tr.Wealth[id] = w.Agent(id).Wealth
	}
	tr.Edges = w.Network().EdgeCount()
	return tr
}

func TestDeterministicGivenSeed(t *testing.T) {
	cfg := testConfig(25, 0, 1234)
	cfg.InitialConfiguration = config.InitRandom1

	a := trace(t, cfg, 3000)
	b := trace(t, cfg, 3000)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("runs diverged (-first +second):\n%s", diff)
	}
	assert.Len(t, a.Events, 3000)

	c := trace(t, testConfig(25, 0, 4321), 3000)
	assert.NotEqual(t, a.Events, c.Events)
}

func TestPayoffConservedForCompletedTasks(t *testing.T) {
	cfg := testConfig(40, 60, 77)
	cfg.InitialConfiguration = config.InitRandom1
	w := newScheduledWorld(t, cfg, nil)
	require.NoError(t, w.Run())

	completed := 0
	for _, id := range w.TaskIDs() {
		task := w.Task(id)
		if !task.Completed {
			continue
		}
		completed++
		assert.False(t, task.Active)
		assert.InDelta(t, task.Payoff, task.Distributed(), 1e-9, "task %d", id)
		for _, amt := range task.Payouts {
			assert.Greater(t, amt, 0.0)
		}
	}
	assert.Equal(t, int(w.Stats().TasksCompleted), completed)
	assertSymmetric(t, w)
}

func TestAtMostOneActiveTaskPerAgent(t *testing.T) {
	w := newScheduledWorld(t, testConfig(15, 50, 9), nil)
	require.NoError(t, w.Run())

	active := make(map[agents.AgentID]int)
	for _, id := range w.TaskIDs() {
		if task := w.Task(id); task.Active {
			active[*task.Owner]++
			require.NotNil(t, w.Agent(*task.Owner).Task)
			assert.Equal(t, id, *w.Agent(*task.Owner).Task)
		}
	}
	for owner, n := range active {
		assert.Equal(t, 1, n, "agent %d", owner)
	}
}

func TestCreateTaskParameters(t *testing.T) {
	cfg := testConfig(200, 0, 3)
	cfg.AgentSpeed = 1.5
	w, err := NewWorld(cfg, nil)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		task := w.CreateTask()
		require.NotNil(t, task)
		assert.Equal(t, tasks.TaskID(i), task.ID)
		assert.GreaterOrEqual(t, task.Subtasks, 1)
		assert.GreaterOrEqual(t, task.Payoff, 1.0)
		assert.Equal(t, 3.0, task.Timeframe)
		assert.True(t, task.Active)
	}
}

func TestCreateTaskWhenEveryoneBusy(t *testing.T) {
	w, err := NewWorld(testConfig(3, 0, 1), nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NotNil(t, w.CreateTask())
	}

	before := len(w.TaskIDs())
	assert.Nil(t, w.CreateTask())
	assert.Len(t, w.TaskIDs(), before)
	assert.Equal(t, uint64(1), w.Stats().TasksSkipped)
}

func TestRandomOneConfiguration(t *testing.T) {
	cfg := testConfig(20, 0, 8)
	cfg.InitialConfiguration = config.InitRandom1
	w, err := NewWorld(cfg, nil)
	require.NoError(t, err)

	assert.Greater(t, w.Network().EdgeCount(), 0)
	assert.LessOrEqual(t, w.Network().EdgeCount(), 20)
	for _, id := range w.AgentIDs() {
		assert.GreaterOrEqual(t, w.Network().Degree(id), 1)
	}
	assertSymmetric(t, w)
}

func TestRandomNewNeighborExhausts(t *testing.T) {
	w, err := NewWorld(testConfig(3, 0, 8), nil)
	require.NoError(t, err)

	assert.True(t, w.RandomNewNeighbor(0))
	assert.True(t, w.RandomNewNeighbor(0))
	assert.False(t, w.RandomNewNeighbor(0))
	assert.Equal(t, 2, w.Network().Degree(0))
	assert.False(t, w.RandomNewNeighbor(99))
}

func TestDataCollectionInterval(t *testing.T) {
	cfg := testConfig(5, 10, 2)
	cfg.CollectionIntervals = 2.5
	c := &countingCollector{}
	w := newScheduledWorld(t, cfg, c)
	require.NoError(t, w.Run())

	assert.Equal(t, []float64{2.5, 5, 7.5, 10}, c.clocks)
}

func TestTickLifecycleErrors(t *testing.T) {
	w, err := NewWorld(testConfig(2, 0, 1), nil)
	require.NoError(t, err)

	_, _, err = w.Tick()
	assert.True(t, errors.Is(err, ErrNotScheduled))

	require.NoError(t, w.InitSchedules())
	assert.True(t, errors.Is(w.InitSchedules(), ErrAlreadyScheduled))
	assert.Equal(t, 4, w.Pending())

	w.queue = nil
	_, ok, err := w.Tick()
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrQueueEmpty))

	assert.True(t, errors.Is(w.Run(), ErrUnbounded))
}

func TestTieBreakByInsertionOrder(t *testing.T) {
	var q eventQueue
	q.push(Event{At: 1, Kind: EventDataCollection}, 1)
	q.push(Event{At: 1, Kind: EventAgentActivation, Agent: 3}, 2)
	q.push(Event{At: 0.5, Kind: EventTaskCreation}, 3)

	assert.Equal(t, EventTaskCreation, q.pop().Kind)
	assert.Equal(t, EventDataCollection, q.pop().Kind)
	assert.Equal(t, EventAgentActivation, q.pop().Kind)
}

func TestRunnerRunsToHalt(t *testing.T) {
	w, err := NewWorld(testConfig(10, 15, 4), nil)
	require.NoError(t, err)

	r := NewRunner(w)
	r.Interval = time.Millisecond
	r.Batch = 20
	var halted bool
	r.OnHalt = func(err error) { halted = err == nil }

	require.NoError(t, r.Run())
	assert.True(t, halted)
	assert.False(t, r.Running())

	r.View(func(w *World) {
		assert.Equal(t, StateHalted, w.State())
		assert.Greater(t, w.Stats().Activations, uint64(0))
	})

	r.SetSpeed(0)
	assert.Equal(t, 0.0, r.Speed())
	r.Stop()
	r.Stop()
}
