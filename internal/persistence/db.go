// Package persistence provides SQLite-based storage for simulation runs.
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/goalnet/internal/agents"
	"github.com/talgya/goalnet/internal/collector"
	"github.com/talgya/goalnet/internal/config"
	"github.com/talgya/goalnet/internal/tasks"
)

// ErrUnknownRun is returned when a run ID is not in the store.
var ErrUnknownRun = errors.New("unknown run")

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Parallel batch runs share one file; serialize writers.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		agent_count INTEGER NOT NULL,
		config_json TEXT NOT NULL,
		started_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL REFERENCES runs(id),
		clock REAL NOT NULL,
		wealth_json TEXT NOT NULL,
		wth_json TEXT NOT NULL,
		PRIMARY KEY (run_id, clock)
	);

	CREATE TABLE IF NOT EXISTS tasks (
		run_id TEXT NOT NULL REFERENCES runs(id),
		id INTEGER NOT NULL,
		owner INTEGER,
		payoff REAL NOT NULL,
		subtasks INTEGER NOT NULL,
		timeframe REAL NOT NULL,
		completed INTEGER NOT NULL,
		workers_json TEXT NOT NULL,
		PRIMARY KEY (run_id, id)
	);

	CREATE TABLE IF NOT EXISTS edges (
		run_id TEXT NOT NULL REFERENCES runs(id),
		clock REAL NOT NULL,
		a INTEGER NOT NULL,
		b INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_edges_run_clock ON edges(run_id, clock);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// RunInfo is one row of the runs table.
type RunInfo struct {
	ID         string `db:"id" json:"id"`
	Seed       int64  `db:"seed" json:"seed"`
	AgentCount int    `db:"agent_count" json:"agent_count"`
	ConfigJSON string `db:"config_json" json:"config"`
	StartedAt  int64  `db:"started_at" json:"started_at"`
}

// Started returns StartedAt as a time.
func (r RunInfo) Started() time.Time {
	return time.Unix(r.StartedAt, 0)
}

// Run writes rows for one simulation run. It implements collector.Sink.
type Run struct {
	db *DB
	ID string
}

// CreateRun registers a new run for cfg, which must carry a seed.
func (db *DB) CreateRun(cfg config.Config) (*Run, error) {
	if cfg.RandomSeed == nil {
		return nil, fmt.Errorf("%w: run needs a seed", config.ErrInvalidConfig)
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	_, err = db.conn.Exec(
		"INSERT INTO runs (id, seed, agent_count, config_json, started_at) VALUES (?, ?, ?, ?, ?)",
		id, *cfg.RandomSeed, cfg.AgentCount, string(cfgJSON), time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	slog.Info("run registered", "run", id, "seed", *cfg.RandomSeed, "agents", cfg.AgentCount)
	return &Run{db: db, ID: id}, nil
}

// SaveSnapshot stores one collection point with its network edges. Saving
// again at a clock already stored overwrites it.
func (r *Run) SaveSnapshot(s *collector.Snapshot) error {
	wealthJSON, err := json.Marshal(s.Wealth)
	if err != nil {
		return err
	}
	wthJSON, err := json.Marshal(s.WillingnessToHelp)
	if err != nil {
		return err
	}

	tx, err := r.db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO snapshots (run_id, clock, wealth_json, wth_json) VALUES (?, ?, ?, ?)",
		r.ID, s.Clock, string(wealthJSON), string(wthJSON),
	); err != nil {
		return fmt.Errorf("insert snapshot at %.3f: %w", s.Clock, err)
	}

	// A repeat save at the same clock replaces that clock's edges.
	if _, err := tx.Exec("DELETE FROM edges WHERE run_id = ? AND clock = ?", r.ID, s.Clock); err != nil {
		return err
	}
	if len(s.Network) > 0 {
		stmt, err := tx.Preparex("INSERT INTO edges (run_id, clock, a, b) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range s.Network {
			if _, err := stmt.Exec(r.ID, s.Clock, e.A, e.B); err != nil {
				return fmt.Errorf("insert edge %d-%d: %w", e.A, e.B, err)
			}
		}
	}

	return tx.Commit()
}

// SaveTasks writes every task (full replace for this run).
func (r *Run) SaveTasks(ts []tasks.Task) error {
	tx, err := r.db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM tasks WHERE run_id = ?", r.ID); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO tasks
		(run_id, id, owner, payoff, subtasks, timeframe, completed, workers_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range ts {
		workersJSON, _ := json.Marshal(t.Workers)
		var owner *int64
		if t.Owner != nil {
			o := int64(*t.Owner)
			owner = &o
		}
		completed := 0
		if t.Completed {
			completed = 1
		}
		if _, err := stmt.Exec(r.ID, t.ID, owner, t.Payoff, t.Subtasks, t.Timeframe, completed, string(workersJSON)); err != nil {
			return fmt.Errorf("insert task %d: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// Runs returns every stored run, newest first.
func (db *DB) Runs() ([]RunInfo, error) {
	var runs []RunInfo
	err := db.conn.Select(&runs,
		"SELECT id, seed, agent_count, config_json, started_at FROM runs ORDER BY started_at DESC, id")
	return runs, err
}

// LoadWealthSeries rebuilds each agent's wealth over time for runID.
func (db *DB) LoadWealthSeries(runID string) (map[agents.AgentID][]collector.ClockValue, error) {
	var n int
	if err := db.conn.Get(&n, "SELECT COUNT(*) FROM runs WHERE id = ?", runID); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}

	var rows []struct {
		Clock  float64 `db:"clock"`
		Wealth string  `db:"wealth_json"`
	}
	if err := db.conn.Select(&rows,
		"SELECT clock, wealth_json FROM snapshots WHERE run_id = ? ORDER BY clock", runID); err != nil {
		return nil, err
	}

	out := make(map[agents.AgentID][]collector.ClockValue)
	for _, row := range rows {
		var wealth map[agents.AgentID]float64
		if err := json.Unmarshal([]byte(row.Wealth), &wealth); err != nil {
			return nil, fmt.Errorf("decode wealth at %.3f: %w", row.Clock, err)
		}
		for id, v := range wealth {
			out[id] = append(out[id], collector.ClockValue{Clock: row.Clock, Value: v})
		}
	}
	return out, nil
}

// TaskRow is a stored task.
type TaskRow struct {
	ID          uint64  `db:"id"`
	Owner       *int64  `db:"owner"`
	Payoff      float64 `db:"payoff"`
	Subtasks    int     `db:"subtasks"`
	Timeframe   float64 `db:"timeframe"`
	Completed   bool    `db:"completed"`
	WorkersJSON string  `db:"workers_json"`
}

// LoadTasks returns the stored tasks of runID in ID order.
func (db *DB) LoadTasks(runID string) ([]TaskRow, error) {
	var rows []TaskRow
	err := db.conn.Select(&rows, `SELECT id, owner, payoff, subtasks, timeframe, completed, workers_json
		FROM tasks WHERE run_id = ? ORDER BY id`, runID)
	return rows, err
}

// EdgeCount returns how many edges were recorded for runID at clock.
func (db *DB) EdgeCount(runID string, clock float64) (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM edges WHERE run_id = ? AND clock = ?", runID, clock)
	return n, err
}

var _ collector.Sink = (*Run)(nil)
