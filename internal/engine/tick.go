// Runner paces a World against the wall clock so it can be observed live.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Runner drives a World from a single goroutine. Every tick and every read
// through View holds the same lock, so no reader observes a half-applied event.
type Runner struct {
	mu    sync.Mutex
	world *World

	speedMu  sync.Mutex
	speed    float64       // Multiplier: 1.0 = one batch per interval, 0 = paused
	Interval time.Duration // Base step interval
	Batch    int           // Ticks per step

	// ReportEvery is the simulated-time spacing of progress reports. 0 disables them.
	ReportEvery float64
	lastReport  float64

	// OnHalt is called once, outside the lock, when the world stops.
	OnHalt func(err error)

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRunner creates a runner with default pacing for w.
func NewRunner(w *World) *Runner {
	return &Runner{
		world:       w,
		speed:       1.0,
		Interval:    100 * time.Millisecond,
		Batch:       50,
		ReportEvery: 10,
		stop:        make(chan struct{}),
	}
}

// Run starts the loop. Blocks until Stop is called or the world halts.
func (r *Runner) Run() error {
	r.mu.Lock()
	if r.world.State() == StateUninitialized {
		if err := r.world.InitSchedules(); err != nil {
			r.mu.Unlock()
			return err
		}
	}
	r.mu.Unlock()

	r.running.Store(true)
	defer r.running.Store(false)
	slog.Info("simulation runner started", "clock", r.world.Clock(), "speed", r.Speed())

	for {
		select {
		case <-r.stop:
			slog.Info("simulation runner stopped", "clock", r.world.Clock())
			return nil
		default:
		}

		speed := r.Speed()
		if speed <= 0 {
			// Paused: sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		done, err := r.step()
		if done || err != nil {
			if r.OnHalt != nil {
				r.OnHalt(err)
			}
			slog.Info("simulation runner finished", "clock", r.world.Clock(), "error", err)
			return err
		}

		elapsed := time.Since(start)
		target := time.Duration(float64(r.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}
}

// Stop halts the loop after the current step.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Running reports whether the loop is active.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Speed returns the current speed multiplier.
func (r *Runner) Speed() float64 {
	r.speedMu.Lock()
	defer r.speedMu.Unlock()
	return r.speed
}

// SetSpeed changes the speed multiplier. 0 pauses.
func (r *Runner) SetSpeed(speed float64) {
	r.speedMu.Lock()
	r.speed = speed
	r.speedMu.Unlock()
}

// View runs fn with exclusive access to the world.
func (r *Runner) View(fn func(w *World)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.world)
}

// step runs one batch of ticks. done is true once the world has halted.
func (r *Runner) step() (done bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < r.Batch; i++ {
		_, ok, err := r.world.Tick()
		if err != nil {
			if errors.Is(err, ErrQueueEmpty) {
				return true, err
			}
			return true, fmt.Errorf("tick: %w", err)
		}
		if !ok {
			r.report()
			return true, nil
		}
	}
	if r.ReportEvery > 0 && r.world.Clock()-r.lastReport >= r.ReportEvery {
		r.report()
	}
	return false, nil
}

func (r *Runner) report() {
	w := r.world
	r.lastReport = w.Clock()
	st := w.Stats()
	slog.Info("run report",
		"clock", fmt.Sprintf("%.2f", w.Clock()),
		"ticks", humanize.Comma(int64(st.Ticks)),
		"tasks_created", humanize.Comma(int64(st.TasksCreated)),
		"tasks_completed", humanize.Comma(int64(st.TasksCompleted)),
		"messages", humanize.Comma(int64(st.Messages)),
		"edges", w.Network().EdgeCount(),
		"total_wealth", humanize.CommafWithDigits(w.TotalWealth(), 2),
	)
}
