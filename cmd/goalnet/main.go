// Command goalnet runs one goal-network world, serves it over HTTP while it
// runs and exports the collected time series when it stops.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/urfave/cli.v1"

	"github.com/talgya/goalnet/internal/api"
	"github.com/talgya/goalnet/internal/collector"
	"github.com/talgya/goalnet/internal/config"
	"github.com/talgya/goalnet/internal/engine"
	"github.com/talgya/goalnet/internal/entropy"
	"github.com/talgya/goalnet/internal/persistence"
	"github.com/talgya/goalnet/internal/tasks"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "YAML configuration file (defaults apply to missing keys)",
	}
	seedFlag = cli.Int64Flag{
		Name:  "seed",
		Usage: "random seed, overrides random_seed from the config",
	}
	dbFlag = cli.StringFlag{
		Name:  "db",
		Usage: "SQLite file to record the run in (empty = no database)",
	}
	portFlag = cli.IntFlag{
		Name:  "port",
		Usage: "HTTP API port (0 = no API)",
		Value: 8080,
	}
	speedFlag = cli.Float64Flag{
		Name:  "speed",
		Usage: "pacing multiplier, 0 starts paused",
		Value: 1,
	}
	outFlag = cli.StringFlag{
		Name:  "out",
		Usage: "time-series export path (.zst compresses)",
		Value: "data/run.json.zst",
	}
	lingerFlag = cli.BoolFlag{
		Name:  "linger",
		Usage: "keep serving the API after the world halts, until interrupted",
	}
	verboseFlag = cli.BoolFlag{
		Name:  "verbose",
		Usage: "debug logging",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "goalnet"
	app.Usage = "discrete-event simulation of agents cooperating on tasks"
	app.Flags = []cli.Flag{configFlag, seedFlag, dbFlag, portFlag, speedFlag, outFlag, lingerFlag, verboseFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		slog.Error("goalnet failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	level := slog.LevelInfo
	if ctx.Bool(verboseFlag.Name) {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	// ── Configuration ─────────────────────────────────────────────────
	cfg := config.Default()
	if path := ctx.String(configFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if ctx.IsSet(seedFlag.Name) {
		cfg = cfg.WithSeed(ctx.Int64(seedFlag.Name))
	}
	if cfg.RandomSeed == nil {
		cfg = cfg.WithSeed(entropy.CryptoSeed())
	}
	slog.Info("goalnet starting",
		"agents", cfg.AgentCount,
		"initial_configuration", cfg.InitialConfiguration,
		"max_clock", cfg.MaxClock,
		"seed", *cfg.RandomSeed,
	)

	// ── Collection and database ───────────────────────────────────────
	col := collector.New()
	var run *persistence.Run
	if dbPath := ctx.String(dbFlag.Name); dbPath != "" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create db directory: %w", err)
			}
		}
		db, err := persistence.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		run, err = db.CreateRun(cfg)
		if err != nil {
			return err
		}
		col.SetSink(run)
		slog.Info("database opened", "path", dbPath, "run", run.ID)
	}

	// ── World ─────────────────────────────────────────────────────────
	world, err := engine.NewWorld(cfg, col)
	if err != nil {
		return err
	}
	runner := engine.NewRunner(world)
	runner.SetSpeed(ctx.Float64(speedFlag.Name))

	// ── HTTP API ──────────────────────────────────────────────────────
	var apiServer *api.Server
	if port := ctx.Int(portFlag.Name); port > 0 {
		adminKey := os.Getenv("GOALNET_ADMIN_KEY")
		if adminKey == "" {
			slog.Warn("GOALNET_ADMIN_KEY not set, admin POST endpoints will be disabled")
		}
		apiServer = &api.Server{
			Runner:    runner,
			Collector: col,
			Run:       run,
			Port:      port,
			AdminKey:  adminKey,
			Live:      api.DefaultLiveConfig(),
		}
		apiServer.Start()
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", port)
	}

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	interrupted := make(chan struct{})
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		runner.Stop()
		close(interrupted)
	}()

	fmt.Println("Starting simulation... (Ctrl+C to stop)")
	runErr := runner.Run()

	// ── Export ────────────────────────────────────────────────────────
	runner.View(func(w *engine.World) {
		if err := export(w, col, run, ctx.String(outFlag.Name)); err != nil {
			slog.Error("export failed", "error", err)
		}
		summarize(w)
	})

	if apiServer != nil {
		if ctx.Bool(lingerFlag.Name) && runErr == nil {
			fmt.Println("World halted; API still serving (Ctrl+C to exit)")
			<-interrupted
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		apiServer.Shutdown(shutdownCtx)
	}
	return runErr
}

func export(w *engine.World, col *collector.Collector, run *persistence.Run, out string) error {
	if run != nil {
		states := make([]tasks.Task, 0, len(w.TaskIDs()))
		for _, id := range w.TaskIDs() {
			states = append(states, w.Task(id).State())
		}
		if err := run.SaveTasks(states); err != nil {
			return fmt.Errorf("save tasks: %w", err)
		}
	}
	if out == "" {
		return nil
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}
	if err := col.WriteJSONFile(out); err != nil {
		return err
	}
	slog.Info("time series exported", "path", out, "snapshots", len(col.Snapshots()))
	return nil
}

func summarize(w *engine.World) {
	st := w.Stats()
	fmt.Printf("\nSimulation stopped at clock %.2f (%s).\n", w.Clock(), w.State())
	fmt.Printf("  events:          %s\n", humanize.Comma(int64(st.Ticks)))
	fmt.Printf("  tasks completed: %s of %s\n", humanize.Comma(int64(st.TasksCompleted)), humanize.Comma(int64(st.TasksCreated)))
	fmt.Printf("  messages:        %s\n", humanize.Comma(int64(st.Messages)))
	fmt.Printf("  network edges:   %d\n", w.Network().EdgeCount())
	fmt.Printf("  total wealth:    %s\n", humanize.CommafWithDigits(w.TotalWealth(), 2))
}
