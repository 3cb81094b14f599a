package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/goalnet/internal/collector"
	"github.com/talgya/goalnet/internal/config"
	"github.com/talgya/goalnet/internal/engine"
	"github.com/talgya/goalnet/internal/entropy"
	"github.com/talgya/goalnet/internal/persistence"
	"github.com/talgya/goalnet/internal/tasks"
)

// ctxCheckEvery is how many ticks pass between cancellation checks.
const ctxCheckEvery = 1000

var defaultCounts = []int{50, 100, 200, 300, 400, 500}

type job struct {
	Count int
	Index int
	Cfg   config.Config
}

type result struct {
	Job       job
	RunID     string
	Clock     float64
	Stats     engine.Stats
	Wealth    float64
	Gini      float64
	Edges     int
	Snapshots int
	Export    string
	Elapsed   time.Duration
}

// parseCounts reads a comma-separated list of positive agent counts.
func parseCounts(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return defaultCounts, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("agent count %q: %w", part, err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("agent count %d must be positive", n)
		}
		out = append(out, n)
	}
	return out, nil
}

// jobConfig is the per-count setup: one random edge per agent, a horizon of
// two time units per agent and a collection every count/50 units.
func jobConfig(count int) config.Config {
	cfg := config.Default()
	cfg.AgentCount = count
	cfg.InitialConfiguration = config.InitRandom1
	cfg.MaxClock = float64(2 * count)
	cfg.CollectionIntervals = float64(max(1, count/50))
	return cfg
}

// buildPlan lays out runs jobs per count. With a base seed, job i gets
// base+i so the whole batch is reproducible.
func buildPlan(counts []int, runs int, baseSeed *int64) []job {
	var plan []job
	for _, count := range counts {
		for i := 0; i < runs; i++ {
			cfg := jobConfig(count)
			if baseSeed != nil {
				cfg = cfg.WithSeed(*baseSeed + int64(len(plan)))
			} else {
				cfg = cfg.WithSeed(entropy.CryptoSeed())
			}
			plan = append(plan, job{Count: count, Index: i, Cfg: cfg})
		}
	}
	return plan
}

// runPlan executes every job with at most parallel running at once. Results
// come back in plan order.
func runPlan(ctx context.Context, plan []job, parallel int, db *persistence.DB, outDir string) ([]result, error) {
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return nil, err
		}
	}

	results := make([]result, len(plan))
	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, j := range plan {
		g.Go(func() error {
			r, err := runJob(gctx, j, db, outDir)
			if err != nil {
				return fmt.Errorf("agents=%d run=%d: %w", j.Count, j.Index, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func runJob(ctx context.Context, j job, db *persistence.DB, outDir string) (result, error) {
	start := time.Now()
	res := result{Job: j}

	col := collector.New()
	var run *persistence.Run
	if db != nil {
		var err error
		run, err = db.CreateRun(j.Cfg)
		if err != nil {
			return res, err
		}
		col.SetSink(run)
		res.RunID = run.ID
	}

	w, err := engine.NewWorld(j.Cfg, col)
	if err != nil {
		return res, err
	}
	if err := w.InitSchedules(); err != nil {
		return res, err
	}
	slog.Info("run started", "agents", j.Count, "run", j.Index, "seed", *j.Cfg.RandomSeed)

	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}
		_, ok, err := w.Tick()
		if err != nil {
			return res, err
		}
		if !ok {
			break
		}
	}

	if run != nil {
		states := make([]tasks.Task, 0, len(w.TaskIDs()))
		for _, id := range w.TaskIDs() {
			states = append(states, w.Task(id).State())
		}
		if err := run.SaveTasks(states); err != nil {
			return res, err
		}
	}

	if outDir != "" {
		res.Export = filepath.Join(outDir, fmt.Sprintf("goalnet_%d_%d_%d.json.zst", j.Count, j.Index, *j.Cfg.RandomSeed))
		if err := col.WriteJSONFile(res.Export); err != nil {
			return res, err
		}
	}

	res.Clock = w.Clock()
	res.Stats = w.Stats()
	res.Wealth = w.TotalWealth()
	res.Edges = w.Network().EdgeCount()
	res.Snapshots = len(col.Snapshots())
	if latest := col.Latest(); latest != nil {
		res.Gini = collector.Gini(latest.Wealth)
	}
	res.Elapsed = time.Since(start)
	slog.Info("run finished",
		"agents", j.Count,
		"run", j.Index,
		"clock", res.Clock,
		"tasks_completed", res.Stats.TasksCompleted,
		"elapsed", res.Elapsed.Round(time.Millisecond),
	)
	return res, nil
}

// printSummary renders one row per run.
func printSummary(out io.Writer, results []result) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Agents", "Run", "Seed", "Clock", "Tasks Done", "Tasks Created", "Total Wealth", "Gini", "Edges", "Elapsed"})
	for _, r := range results {
		table.Append([]string{
			strconv.Itoa(r.Job.Count),
			strconv.Itoa(r.Job.Index),
			strconv.FormatInt(*r.Job.Cfg.RandomSeed, 10),
			fmt.Sprintf("%.2f", r.Clock),
			humanize.Comma(int64(r.Stats.TasksCompleted)),
			humanize.Comma(int64(r.Stats.TasksCreated)),
			humanize.CommafWithDigits(r.Wealth, 2),
			fmt.Sprintf("%.3f", r.Gini),
			strconv.Itoa(r.Edges),
			r.Elapsed.Round(time.Millisecond).String(),
		})
	}
	table.Render()
}
