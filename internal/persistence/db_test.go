package persistence

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/goalnet/internal/agents"
	"github.com/talgya/goalnet/internal/collector"
	"github.com/talgya/goalnet/internal/config"
	"github.com/talgya/goalnet/internal/engine"
	"github.com/talgya/goalnet/internal/social"
	"github.com/talgya/goalnet/internal/tasks"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "goalnet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateRunRequiresSeed(t *testing.T) {
	db := openTestDB(t)
	_, err := db.CreateRun(config.Default())
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)
	run, err := db.CreateRun(config.Default().WithSeed(7))
	require.NoError(t, err)

	snaps := []*collector.Snapshot{
		{
			Clock:   1,
			Wealth:  map[agents.AgentID]float64{0: 0, 1: 2.5},
			Network: []social.Edge{social.NewEdge(1, 0)},
		},
		{
			Clock:   2,
			Wealth:  map[agents.AgentID]float64{0: 1, 1: 3},
			Network: []social.Edge{social.NewEdge(0, 1), social.NewEdge(1, 2)},
		},
	}
	for _, s := range snaps {
		require.NoError(t, run.SaveSnapshot(s))
	}

	series, err := db.LoadWealthSeries(run.ID)
	require.NoError(t, err)
	assert.Equal(t, []collector.ClockValue{{Clock: 1, Value: 2.5}, {Clock: 2, Value: 3}}, series[1])
	assert.Len(t, series[0], 2)

	n, err := db.EdgeCount(run.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = db.LoadWealthSeries("missing")
	assert.True(t, errors.Is(err, ErrUnknownRun))
}

func TestSaveSnapshotTwiceAtSameClock(t *testing.T) {
	db := openTestDB(t)
	run, err := db.CreateRun(config.Default().WithSeed(9))
	require.NoError(t, err)

	s := &collector.Snapshot{
		Clock:   5,
		Wealth:  map[agents.AgentID]float64{0: 1, 1: 2},
		Network: []social.Edge{social.NewEdge(0, 1), social.NewEdge(1, 2)},
	}
	require.NoError(t, run.SaveSnapshot(s))
	require.NoError(t, run.SaveSnapshot(s))

	n, err := db.EdgeCount(run.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	s.Network = []social.Edge{social.NewEdge(0, 2)}
	s.Wealth = map[agents.AgentID]float64{0: 4, 1: 2}
	require.NoError(t, run.SaveSnapshot(s))

	n, err = db.EdgeCount(run.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	series, err := db.LoadWealthSeries(run.ID)
	require.NoError(t, err)
	assert.Equal(t, []collector.ClockValue{{Clock: 5, Value: 4}}, series[0])
}

func TestSaveTasksReplaces(t *testing.T) {
	db := openTestDB(t)
	run, err := db.CreateRun(config.Default().WithSeed(1))
	require.NoError(t, err)

	owner := social.AgentID(4)
	task, err := tasks.New(0, 3, 2, 2, &owner)
	require.NoError(t, err)
	task.Workers = []social.AgentID{1, 2}
	require.NoError(t, run.SaveTasks([]tasks.Task{task.State()}))

	task.Complete()
	other, err := tasks.New(1, 1, 1, 2, nil)
	require.NoError(t, err)
	require.NoError(t, run.SaveTasks([]tasks.Task{task.State(), other.State()}))

	rows, err := db.LoadTasks(run.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Completed)
	require.NotNil(t, rows[0].Owner)
	assert.Equal(t, int64(4), *rows[0].Owner)
	assert.Nil(t, rows[1].Owner)

	var workers []social.AgentID
	require.NoError(t, json.Unmarshal([]byte(rows[0].WorkersJSON), &workers))
	assert.Equal(t, []social.AgentID{1, 2, 4}, workers)
}

func TestRunAsCollectorSink(t *testing.T) {
	db := openTestDB(t)

	cfg := config.Default().WithSeed(21)
	cfg.AgentCount = 12
	cfg.MaxClock = 6
	cfg.InitialConfiguration = config.InitRandom1

	run, err := db.CreateRun(cfg)
	require.NoError(t, err)

	c := collector.New()
	c.SetSink(run)
	w, err := engine.NewWorld(cfg, c)
	require.NoError(t, err)
	require.NoError(t, w.Run())

	series, err := db.LoadWealthSeries(run.ID)
	require.NoError(t, err)
	assert.Len(t, series, 12)
	for id, points := range series {
		require.Len(t, points, 6, "agent %d", id)
		assert.Equal(t, w.Agent(id).Wealth, points[5].Value)
	}

	runs, err := db.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, int64(21), runs[0].Seed)
	assert.Equal(t, 12, runs[0].AgentCount)

	var stored config.Config
	require.NoError(t, json.Unmarshal([]byte(runs[0].ConfigJSON), &stored))
	assert.Equal(t, cfg.MaxClock, stored.MaxClock)
}
