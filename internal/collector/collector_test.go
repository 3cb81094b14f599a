package collector

import (
	"bytes"
	"encoding/csv"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/goalnet/internal/agents"
	"github.com/talgya/goalnet/internal/config"
	"github.com/talgya/goalnet/internal/engine"
)

type memorySink struct {
	clocks []float64
	err    error
}

func (m *memorySink) SaveSnapshot(s *Snapshot) error {
	m.clocks = append(m.clocks, s.Clock)
	return m.err
}

func runWorld(t *testing.T, agentCount int, maxClock float64, c *Collector) *engine.World {
	t.Helper()
	cfg := config.Default()
	cfg.AgentCount = agentCount
	cfg.MaxClock = maxClock
	cfg.InitialConfiguration = config.InitRandom1
	cfg = cfg.WithSeed(11)

	w, err := engine.NewWorld(cfg, c)
	require.NoError(t, err)
	require.NoError(t, w.Run())
	return w
}

func TestCollectEveryInterval(t *testing.T) {
	c := New()
	sink := &memorySink{}
	c.SetSink(sink)
	w := runWorld(t, 20, 12, c)

	require.Len(t, c.Snapshots(), int(w.Stats().Collections))
	assert.Len(t, c.Snapshots(), 12)
	assert.Equal(t, 12.0, c.Latest().Clock)

	var clocks []float64
	for _, s := range c.Snapshots() {
		clocks = append(clocks, s.Clock)
		assert.Len(t, s.Wealth, 20)
		assert.Len(t, s.Nodes, 20)
	}
	assert.Equal(t, clocks, sink.clocks)
}

func TestSinkErrorDoesNotStopCollection(t *testing.T) {
	c := New()
	c.SetSink(&memorySink{err: errors.New("disk full")})
	runWorld(t, 5, 3, c)
	assert.Len(t, c.Snapshots(), 3)
}

func TestSnapshotsAreCopies(t *testing.T) {
	c := New()
	cfg := config.Default().WithSeed(3)
	cfg.AgentCount = 4
	w, err := engine.NewWorld(cfg, c)
	require.NoError(t, err)

	task := w.CreateTask()
	require.NotNil(t, task)
	c.Collect(w)

	task.ExecuteSubtask(1)
	w.Agent(0).Wealth = 99

	s := c.Latest()
	assert.Empty(t, s.Tasks[task.ID].SubtasksExecuted)
	assert.Equal(t, 0.0, s.Wealth[0])
}

func TestCollectSameClockReplaces(t *testing.T) {
	c := New()
	sink := &memorySink{}
	c.SetSink(sink)
	cfg := config.Default().WithSeed(3)
	cfg.AgentCount = 4
	w, err := engine.NewWorld(cfg, c)
	require.NoError(t, err)

	c.Collect(w)
	w.Agent(1).Wealth = 7
	c.Collect(w)

	require.Len(t, c.Snapshots(), 1)
	assert.Equal(t, 7.0, c.Latest().Wealth[1])
	assert.Equal(t, []float64{0, 0}, sink.clocks)

	var buf bytes.Buffer
	require.NoError(t, c.WriteCSV(&buf, KeyWealth))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestBuildTaskNetwork(t *testing.T) {
	cfg := config.Default().WithSeed(5)
	cfg.AgentCount = 4
	w, err := engine.NewWorld(cfg, nil)
	require.NoError(t, err)

	first := w.CreateTask()
	second := w.CreateTask()
	require.NotNil(t, first)
	require.NotNil(t, second)

	helper := agents.AgentID(0)
	for helper == *first.Owner || helper == *second.Owner {
		helper++
	}
	first.Workers = append(first.Workers, helper, helper)
	first.Complete()
	second.Workers = append(second.Workers, helper)

	links := BuildTaskNetwork(w)
	want := []TaskLink{{Source: helper, Target: *first.Owner, Weight: 2}}
	if diff := cmp.Diff(want, links); diff != "" {
		t.Errorf("task network (-want +got):\n%s", diff)
	}
}

func TestWriteJSONFileCompressed(t *testing.T) {
	c := New()
	runWorld(t, 10, 5, c)

	path := filepath.Join(t.TempDir(), "run.json.zst")
	require.NoError(t, c.WriteJSONFile(path))

	got, err := ReadJSONFile(path)
	require.NoError(t, err)
	require.Len(t, got, len(c.Snapshots()))
	assert.Equal(t, c.Latest().Wealth, got[len(got)-1].Wealth)
	assert.Equal(t, c.Latest().Network, got[len(got)-1].Network)

	plain := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, c.WriteJSONFile(plain))
	again, err := ReadJSONFile(plain)
	require.NoError(t, err)
	assert.Len(t, again, len(got))
}

func TestWriteJSONFilePlain(t *testing.T) {
	c := New()
	runWorld(t, 6, 3, c)

	dir := t.TempDir()
	path := filepath.Join(dir, "run.json")
	require.NoError(t, c.WriteJSONFile(path))
	got, err := ReadJSONFile(path)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	assert.Error(t, c.WriteJSONFile(filepath.Join(dir, "missing", "run.json")))
}

func TestWriteCSVWealth(t *testing.T) {
	c := New()
	runWorld(t, 3, 4, c)

	var buf bytes.Buffer
	require.NoError(t, c.WriteCSV(&buf, KeyWealth))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, []string{"timestamp", "0", "1", "2"}, records[0])
	assert.Equal(t, "1", records[1][0])
	assert.Equal(t, "4", records[4][0])
}

func TestWriteCSVKeys(t *testing.T) {
	c := New()
	runWorld(t, 8, 6, c)

	for _, key := range []string{KeyTasks, KeyNetwork, KeyTaskNetwork, KeyWillingnessToHelp} {
		var buf bytes.Buffer
		require.NoError(t, c.WriteCSV(&buf, key), key)
		assert.True(t, strings.HasPrefix(buf.String(), "timestamp"), key)
	}

	err := c.WriteCSV(&bytes.Buffer{}, "happiness")
	assert.True(t, errors.Is(err, ErrUnknownKey))

	err = New().WriteCSV(&bytes.Buffer{}, "happiness")
	assert.True(t, errors.Is(err, ErrUnknownKey))
}

func TestWriteGraphML(t *testing.T) {
	assert.ErrorIs(t, New().WriteGraphML(&bytes.Buffer{}), ErrNoSnapshots)

	c := New()
	runWorld(t, 6, 3, c)

	var buf bytes.Buffer
	require.NoError(t, c.WriteGraphML(&buf))
	out := buf.String()
	assert.Contains(t, out, `<graph edgedefault="directed">`)
	assert.Equal(t, 6, strings.Count(out, "<node "))
}

func TestCountTasks(t *testing.T) {
	c := New()
	w := runWorld(t, 15, 20, c)

	counts := c.CountTasks()
	require.Len(t, counts, len(c.Snapshots()))
	last := counts[len(counts)-1]
	assert.Equal(t, len(w.TaskIDs()), last.Active+last.Completed)
	for i := 1; i < len(counts); i++ {
		assert.GreaterOrEqual(t, counts[i].Completed, counts[i-1].Completed)
	}
}

func TestAverageWTHSkipsIsolatedAgents(t *testing.T) {
	c := &Collector{snapshots: []*Snapshot{
		{Clock: 1, WillingnessToHelp: map[agents.AgentID]map[agents.AgentID]float64{
			0: {1: 1, 2: 3},
			1: {},
		}},
	}}
	got := c.AverageWTH()
	assert.Equal(t, []ClockValue{{Clock: 1, Value: 2}}, got[0])
	assert.NotContains(t, got, agents.AgentID(1))
}

func TestGini(t *testing.T) {
	assert.Equal(t, 0.0, Gini(nil))
	assert.Equal(t, 0.0, Gini(map[agents.AgentID]float64{0: 0, 1: 0}))
	assert.InDelta(t, 0.0, Gini(map[agents.AgentID]float64{0: 2, 1: 2, 2: 2}), 1e-12)
	assert.InDelta(t, 0.75, Gini(map[agents.AgentID]float64{0: 8, 1: 0, 2: 0, 3: 0}), 1e-12)
}
