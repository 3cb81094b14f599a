package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/goalnet/internal/collector"
	"github.com/talgya/goalnet/internal/config"
	"github.com/talgya/goalnet/internal/persistence"
)

func TestParseCounts(t *testing.T) {
	counts, err := parseCounts("")
	require.NoError(t, err)
	assert.Equal(t, []int{50, 100, 200, 300, 400, 500}, counts)

	counts, err = parseCounts(" 10, 20 ")
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20}, counts)

	_, err = parseCounts("10,x")
	assert.Error(t, err)
	_, err = parseCounts("0")
	assert.Error(t, err)
}

func TestJobConfig(t *testing.T) {
	cfg := jobConfig(300)
	assert.Equal(t, config.InitRandom1, cfg.InitialConfiguration)
	assert.Equal(t, 600.0, cfg.MaxClock)
	assert.Equal(t, 6.0, cfg.CollectionIntervals)

	assert.Equal(t, 1.0, jobConfig(20).CollectionIntervals)
}

func TestBuildPlanSeeds(t *testing.T) {
	base := int64(100)
	plan := buildPlan([]int{5, 10}, 2, &base)
	require.Len(t, plan, 4)
	for i, j := range plan {
		assert.Equal(t, base+int64(i), *j.Cfg.RandomSeed)
	}
	assert.Equal(t, 10, plan[3].Count)
	assert.Equal(t, 1, plan[3].Index)

	for _, j := range buildPlan([]int{5}, 3, nil) {
		assert.NotNil(t, j.Cfg.RandomSeed)
	}
}

func TestRunPlanExportsAndRecords(t *testing.T) {
	dir := t.TempDir()
	db, err := persistence.Open(filepath.Join(dir, "batch.db"))
	require.NoError(t, err)
	defer db.Close()

	base := int64(7)
	plan := buildPlan([]int{10, 20}, 1, &base)
	results, err := runPlan(context.Background(), plan, 2, db, filepath.Join(dir, "out"))
	require.NoError(t, err)
	require.Len(t, results, 2)

	for i, r := range results {
		assert.Equal(t, plan[i].Count, r.Job.Count)
		assert.LessOrEqual(t, r.Clock, plan[i].Cfg.MaxClock)
		assert.Equal(t, int(plan[i].Cfg.MaxClock), r.Snapshots)

		snaps, err := collector.ReadJSONFile(r.Export)
		require.NoError(t, err)
		assert.Len(t, snaps, r.Snapshots)

		series, err := db.LoadWealthSeries(r.RunID)
		require.NoError(t, err)
		assert.Len(t, series, r.Job.Count)
	}

	runs, err := db.Runs()
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	var buf bytes.Buffer
	printSummary(&buf, results)
	assert.Contains(t, buf.String(), "TASKS DONE")
}

func TestRunPlanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	base := int64(1)
	_, err := runPlan(ctx, buildPlan([]int{10}, 1, &base), 1, nil, "")
	assert.ErrorIs(t, err, context.Canceled)
}
