// World ties together the agent and task registries, the social network and
// the event queue, and drives simulated time forward one event at a time.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/goalnet/internal/agents"
	"github.com/talgya/goalnet/internal/config"
	"github.com/talgya/goalnet/internal/entropy"
	"github.com/talgya/goalnet/internal/social"
	"github.com/talgya/goalnet/internal/tasks"
)

// Task generation parameters.
const (
	subtaskLogMean  = 1.0
	subtaskLogSigma = 0.8
	minPayoff       = 1.0
)

var (
	// ErrQueueEmpty means the world has no scheduled work left. It is fatal:
	// the caller must stop driving the world.
	ErrQueueEmpty = errors.New("event queue empty")
	// ErrNotScheduled is returned when ticking a world before InitSchedules.
	ErrNotScheduled = errors.New("schedules not initialized")
	// ErrAlreadyScheduled is returned when InitSchedules runs twice.
	ErrAlreadyScheduled = errors.New("schedules already initialized")
	// ErrUnbounded is returned by Run when no max_clock is configured.
	ErrUnbounded = errors.New("run requires max_clock")
)

// State is the world's lifecycle stage.
type State uint8

const (
	StateUninitialized State = iota
	StateScheduled
	StateRunning
	StateHalted
)

var stateNames = [...]string{"uninitialized", "scheduled", "running", "halted"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Collector is invoked by the scheduler on every data-collection event.
type Collector interface {
	Collect(w *World)
}

// Stats tracks aggregate counters over a run.
type Stats struct {
	Ticks          uint64 `json:"ticks"`
	Activations    uint64 `json:"activations"`
	TasksCreated   uint64 `json:"tasks_created"`
	TasksSkipped   uint64 `json:"tasks_skipped"` // No agent free to own one
	TasksCompleted uint64 `json:"tasks_completed"`
	Messages       uint64 `json:"messages"`
	Introductions  uint64 `json:"introductions"`
	Collections    uint64 `json:"collections"`
}

// World owns every agent, task and edge in a run. It is not safe for
// concurrent use; see Runner for a locked driver.
type World struct {
	cfg   config.Config
	rng   *entropy.Source
	clock float64
	state State

	agents   map[agents.AgentID]*agents.Agent
	agentIDs []agents.AgentID // Ascending; all stochastic picks iterate this

	tasks      map[tasks.TaskID]*tasks.Task
	taskIDs    []tasks.TaskID
	nextTaskID tasks.TaskID

	network *social.Network

	queue eventQueue
	seq   uint64

	collector Collector
	stats     Stats
}

// NewWorld builds a world from cfg. A nil RandomSeed is replaced by a fresh
// seed, which is logged so the run can be reproduced. collector may be nil.
func NewWorld(cfg config.Config, collector Collector) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RandomSeed == nil {
		cfg = cfg.WithSeed(entropy.CryptoSeed())
		slog.Info("no random_seed configured, generated one", "seed", *cfg.RandomSeed)
	}

	rng := entropy.New(*cfg.RandomSeed)
	population := agents.NewSpawner(rng).SpawnPopulation(cfg.AgentCount)

	w := &World{
		cfg:       cfg,
		rng:       rng,
		agents:    make(map[agents.AgentID]*agents.Agent, len(population)),
		agentIDs:  make([]agents.AgentID, 0, len(population)),
		tasks:     make(map[tasks.TaskID]*tasks.Task),
		collector: collector,
	}
	for _, a := range population {
		w.agents[a.ID] = a
		w.agentIDs = append(w.agentIDs, a.ID)
	}
	w.network = social.NewNetwork(w.agentIDs)

	switch cfg.InitialConfiguration {
	case config.InitRandom1:
		for _, id := range w.agentIDs {
			w.RandomNewNeighbor(id)
		}
	case config.InitNone:
	}

	return w, nil
}

// InitSchedules seeds the queue with one task-creation event, one activation
// per agent and the recurring data-collection event.
func (w *World) InitSchedules() error {
	if w.state != StateUninitialized {
		return ErrAlreadyScheduled
	}
	w.schedule(Event{Kind: EventTaskCreation}, w.clock+w.rng.Exponential(w.cfg.TaskSpeed))
	for _, id := range w.agentIDs {
		w.schedule(Event{Kind: EventAgentActivation, Agent: id}, w.clock+w.rng.Exponential(w.cfg.AgentSpeed))
	}
	w.schedule(Event{Kind: EventDataCollection}, w.clock+w.cfg.CollectionIntervals)
	w.state = StateScheduled
	return nil
}

func (w *World) schedule(ev Event, at float64) {
	ev.At = at
	w.seq++
	w.queue.push(ev, w.seq)
}

// Tick processes the next event. It returns ok=false once the next event lies
// beyond max_clock; the world is then halted and left untouched. An empty
// queue yields ErrQueueEmpty.
func (w *World) Tick() (Event, bool, error) {
	switch w.state {
	case StateUninitialized:
		return Event{}, false, ErrNotScheduled
	case StateHalted:
		return Event{}, false, nil
	}
	if w.queue.Len() == 0 {
		return Event{}, false, ErrQueueEmpty
	}

	if next := w.queue.peek(); w.cfg.MaxClock > 0 && next.At > w.cfg.MaxClock {
		w.state = StateHalted
		slog.Debug("world halted", "clock", w.clock, "max_clock", w.cfg.MaxClock)
		return Event{}, false, nil
	}

	ev := w.queue.pop()
	w.state = StateRunning
	w.clock = ev.At
	w.stats.Ticks++

	w.dispatch(ev)
	w.schedule(ev, w.clock+w.delay(ev.Kind))
	return ev, true, nil
}

func (w *World) dispatch(ev Event) {
	switch ev.Kind {
	case EventTaskCreation:
		w.CreateTask()
	case EventAgentActivation:
		a := w.agents[ev.Agent]
		if a == nil {
			return
		}
		w.stats.Activations++
		out := a.Activate(w)
		if out.Completed != nil {
			w.stats.TasksCompleted++
		}
	case EventDataCollection:
		w.stats.Collections++
		if w.collector != nil {
			w.collector.Collect(w)
		}
	}
}

// delay returns the time until an event of kind fires again.
func (w *World) delay(kind EventKind) float64 {
	switch kind {
	case EventTaskCreation:
		return w.rng.Exponential(w.cfg.TaskSpeed)
	case EventAgentActivation:
		return w.rng.Exponential(w.cfg.AgentSpeed)
	default:
		return w.cfg.CollectionIntervals
	}
}

// Run ticks until max_clock halts the world.
func (w *World) Run() error {
	if w.cfg.MaxClock <= 0 {
		return ErrUnbounded
	}
	if w.state == StateUninitialized {
		if err := w.InitSchedules(); err != nil {
			return err
		}
	}
	for {
		_, ok, err := w.Tick()
		if err != nil {
			return fmt.Errorf("tick at clock %.3f: %w", w.clock, err)
		}
		if !ok {
			return nil
		}
	}
}

// CreateTask gives a new task to a random agent without one. It returns nil,
// and changes nothing, when every agent already owns a task.
func (w *World) CreateTask() *tasks.Task {
	var free []agents.AgentID
	for _, id := range w.agentIDs {
		if !w.agents[id].HasTask() {
			free = append(free, id)
		}
	}
	if len(free) == 0 {
		w.stats.TasksSkipped++
		return nil
	}

	owner := free[w.rng.Intn(len(free))]
	subtasks := int(math.Ceil(w.rng.LogNormal(subtaskLogMean, subtaskLogSigma)))
	if subtasks < 1 {
		subtasks = 1
	}
	payoff := float64(subtasks) + w.rng.Normal(0, 1)
	if payoff <= minPayoff {
		payoff = minPayoff
	}

	t, err := tasks.New(w.nextTaskID, payoff, subtasks, 2*w.cfg.AgentSpeed, &owner)
	if err != nil {
		slog.Error("task rejected", "error", err)
		return nil
	}
	w.nextTaskID++
	w.tasks[t.ID] = t
	w.taskIDs = append(w.taskIDs, t.ID)
	w.agents[owner].AssignTask(t.ID)
	w.stats.TasksCreated++

	slog.Debug("task created",
		"task", t.ID,
		"owner", owner,
		"subtasks", subtasks,
		"payoff", fmt.Sprintf("%.3f", payoff),
		"clock", w.clock,
	)
	return t
}

// RandomNewNeighbor links id to a uniformly chosen agent it is not yet
// connected to. It returns false when no such agent exists.
func (w *World) RandomNewNeighbor(id agents.AgentID) bool {
	a := w.agents[id]
	if a == nil {
		return false
	}
	var options []agents.AgentID
	for _, other := range w.agentIDs {
		if other != id && !a.IsNeighbor(other) {
			options = append(options, other)
		}
	}
	if len(options) == 0 {
		return false
	}
	return w.Connect(id, options[w.rng.Intn(len(options))])
}

// ── agents.Context ────────────────────────────────────────────────────────

// Clock returns the current simulated time.
func (w *World) Clock() float64 { return w.clock }

// Rand returns the world's shared random source.
func (w *World) Rand() *entropy.Source { return w.rng }

// Decay returns the willingness-to-help decay exponent.
func (w *World) Decay() float64 { return w.cfg.WTHDecay }

// Agent returns the agent with id, or nil.
func (w *World) Agent(id agents.AgentID) *agents.Agent { return w.agents[id] }

// Task returns the task with id, or nil.
func (w *World) Task(id tasks.TaskID) *tasks.Task { return w.tasks[id] }

// Deliver puts msg in its receiver's inbox.
func (w *World) Deliver(msg agents.Message) {
	r := w.agents[msg.Receiver]
	if r == nil {
		return
	}
	r.Receive(msg)
	w.stats.Messages++
}

// Connect adds a symmetric edge to the network and both neighbor lists.
func (w *World) Connect(a, b agents.AgentID) bool {
	aa, bb := w.agents[a], w.agents[b]
	if aa == nil || bb == nil || !w.network.AddEdge(a, b) {
		return false
	}
	aa.AddNeighbor(b)
	bb.AddNeighbor(a)
	w.stats.Introductions++
	return true
}

// IntroduceRandom is RandomNewNeighbor under the agents.Context name.
func (w *World) IntroduceRandom(id agents.AgentID) bool {
	return w.RandomNewNeighbor(id)
}

// ── read access ───────────────────────────────────────────────────────────

// Config returns the configuration the world was built with, seed included.
func (w *World) Config() config.Config { return w.cfg }

// State returns the lifecycle stage.
func (w *World) State() State { return w.state }

// Stats returns the run counters.
func (w *World) Stats() Stats { return w.stats }

// AgentIDs returns every agent ID in ascending order.
func (w *World) AgentIDs() []agents.AgentID {
	return append([]agents.AgentID(nil), w.agentIDs...)
}

// TaskIDs returns every task ID in creation order.
func (w *World) TaskIDs() []tasks.TaskID {
	return append([]tasks.TaskID(nil), w.taskIDs...)
}

// Network returns the live social network. Callers must not mutate it.
func (w *World) Network() *social.Network { return w.network }

// Pending returns the number of scheduled events.
func (w *World) Pending() int { return w.queue.Len() }

// WillingnessToHelp returns a's current willingness to help b.
func (w *World) WillingnessToHelp(a, b agents.AgentID) float64 {
	ag := w.agents[a]
	if ag == nil {
		return 0
	}
	return ag.WillingnessToHelp(b, w.clock, w.cfg.WTHDecay)
}

// TotalWealth sums every agent's wealth.
func (w *World) TotalWealth() float64 {
	total := 0.0
	for _, id := range w.agentIDs {
		total += w.agents[id].Wealth
	}
	return total
}

var _ agents.Context = (*World)(nil)
