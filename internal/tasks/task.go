// Package tasks provides the Task model: a goal that needs a burst of subtasks
// executed within a trailing time window.
package tasks

import (
	"errors"
	"fmt"

	"github.com/talgya/goalnet/internal/social"
)

// ErrInvalidTask is returned when a task is constructed with unusable parameters.
var ErrInvalidTask = errors.New("invalid task")

// TaskID is a unique task identifier, assigned in increasing order.
type TaskID uint64

// Task is a unit of work owned by one agent and executed by many.
//
// A task completes when at least Subtasks executions fall inside the window
// [latest - Timeframe, latest], where latest is the most recent execution.
type Task struct {
	ID               TaskID           `json:"task_id"`
	Payoff           float64          `json:"payoff"`
	Subtasks         int              `json:"subtasks"`
	Timeframe        float64          `json:"timeframe"`
	Owner            *social.AgentID  `json:"owner"`
	Workers          []social.AgentID `json:"workers"`
	SubtasksExecuted []float64        `json:"subtasks_executed"`
	Active           bool             `json:"active"`
	Completed        bool             `json:"completed"`

	// Payoff bookkeeping, written once by the owner on completion.
	OwnerShare float64                    `json:"owner_share"`
	Payouts    map[social.AgentID]float64 `json:"payouts,omitempty"`
}

// New creates an active task. Subtasks must be at least 1 and payoff positive,
// so fair-pay computations never divide by zero.
func New(id TaskID, payoff float64, subtasks int, timeframe float64, owner *social.AgentID) (*Task, error) {
	if subtasks < 1 {
		return nil, fmt.Errorf("%w: subtasks %d < 1", ErrInvalidTask, subtasks)
	}
	if payoff <= 0 {
		return nil, fmt.Errorf("%w: payoff %.3f <= 0", ErrInvalidTask, payoff)
	}
	if timeframe < 0 {
		return nil, fmt.Errorf("%w: negative timeframe %.3f", ErrInvalidTask, timeframe)
	}
	return &Task{
		ID:        id,
		Payoff:    payoff,
		Subtasks:  subtasks,
		Timeframe: timeframe,
		Owner:     owner,
		Active:    true,
	}, nil
}

// ExecuteSubtask records a subtask execution at tick. Ticks are not required
// to arrive in order.
func (t *Task) ExecuteSubtask(tick float64) {
	t.SubtasksExecuted = append(t.SubtasksExecuted, tick)
}

// inWindow counts executions inside the trailing window ending at the latest one.
func (t *Task) inWindow() int {
	if len(t.SubtasksExecuted) == 0 {
		return 0
	}
	latest := t.SubtasksExecuted[0]
	for _, ts := range t.SubtasksExecuted[1:] {
		if ts > latest {
			latest = ts
		}
	}
	start := latest - t.Timeframe
	count := 0
	for _, ts := range t.SubtasksExecuted {
		if ts >= start {
			count++
		}
	}
	return count
}

// SubtasksRemaining returns how many more executions the current window needs.
// The boolean is false when none remain.
func (t *Task) SubtasksRemaining() (int, bool) {
	count := t.inWindow()
	if count >= t.Subtasks {
		return 0, false
	}
	return t.Subtasks - count, true
}

// IsComplete reports whether enough executions cluster in the trailing window.
func (t *Task) IsComplete() bool {
	if len(t.SubtasksExecuted) < t.Subtasks {
		return false
	}
	return t.inWindow() >= t.Subtasks
}

// FairPay is the per-subtask share of the payoff left after the owner's cut.
func (t *Task) FairPay(ownerGreed float64) float64 {
	return t.Payoff * (1 - ownerGreed) / float64(t.Subtasks)
}

// Complete marks the task finished and records the owner as its final worker.
func (t *Task) Complete() {
	t.Active = false
	t.Completed = true
	if t.Owner != nil {
		t.Workers = append(t.Workers, *t.Owner)
	}
}

// RecordPayouts stores how the payoff was split. Called once by the owner.
func (t *Task) RecordPayouts(ownerShare float64, payouts map[social.AgentID]float64) {
	t.OwnerShare = ownerShare
	t.Payouts = payouts
}

// Distributed returns the total of the owner share and all payouts.
func (t *Task) Distributed() float64 {
	total := t.OwnerShare
	for _, amt := range t.Payouts {
		total += amt
	}
	return total
}

// HasWorker reports whether id has executed a subtask on this task.
func (t *Task) HasWorker(id social.AgentID) bool {
	for _, w := range t.Workers {
		if w == id {
			return true
		}
	}
	return false
}

// State returns a deep copy safe to hand to collectors and encoders.
func (t *Task) State() Task {
	c := *t
	if t.Owner != nil {
		owner := *t.Owner
		c.Owner = &owner
	}
	c.Workers = append([]social.AgentID(nil), t.Workers...)
	c.SubtasksExecuted = append([]float64(nil), t.SubtasksExecuted...)
	if t.Payouts != nil {
		c.Payouts = make(map[social.AgentID]float64, len(t.Payouts))
		for k, v := range t.Payouts {
			c.Payouts[k] = v
		}
	}
	return c
}
