// Package collector snapshots world state at fixed intervals and exports the
// resulting time series.
package collector

import (
	"log/slog"
	"sort"

	"github.com/talgya/goalnet/internal/agents"
	"github.com/talgya/goalnet/internal/engine"
	"github.com/talgya/goalnet/internal/social"
	"github.com/talgya/goalnet/internal/tasks"
)

// TaskLink is a directed worker → owner edge of the task network, weighted by
// how many completed tasks the worker contributed to.
type TaskLink struct {
	Source agents.AgentID `json:"source"` // Worker
	Target agents.AgentID `json:"target"` // Owner
	Weight int            `json:"weight"`
}

// Snapshot is the world state at one collection point.
type Snapshot struct {
	Clock             float64                                        `json:"clock"`
	Wealth            map[agents.AgentID]float64                     `json:"wealth"`
	Tasks             map[tasks.TaskID]tasks.Task                    `json:"tasks"`
	Nodes             []agents.AgentID                               `json:"nodes"`
	Network           []social.Edge                                  `json:"network"`
	TaskNetwork       []TaskLink                                     `json:"task_network"`
	// WillingnessToHelp holds, per agent, its score toward each current
	// neighbor. Non-neighbors are left out.
	WillingnessToHelp map[agents.AgentID]map[agents.AgentID]float64 `json:"willingness_to_help"`
}

// Sink receives every snapshot right after it is taken.
type Sink interface {
	SaveSnapshot(s *Snapshot) error
}

// Collector accumulates snapshots. It implements engine.Collector.
type Collector struct {
	snapshots []*Snapshot
	sink      Sink
}

// New creates an empty collector.
func New() *Collector {
	return &Collector{}
}

// SetSink attaches a sink; nil detaches.
func (c *Collector) SetSink(s Sink) {
	c.sink = s
}

// Collect snapshots w at its current clock. A second collection at the same
// clock replaces the latest snapshot rather than adding a duplicate row.
func (c *Collector) Collect(w *engine.World) {
	s := TakeSnapshot(w)
	if last := c.Latest(); last != nil && last.Clock == s.Clock {
		c.snapshots[len(c.snapshots)-1] = s
	} else {
		c.snapshots = append(c.snapshots, s)
	}
	if c.sink != nil {
		if err := c.sink.SaveSnapshot(s); err != nil {
			slog.Warn("snapshot sink failed", "clock", s.Clock, "error", err)
		}
	}
}

// TakeSnapshot copies the collectable state of w.
func TakeSnapshot(w *engine.World) *Snapshot {
	clock := w.Clock()
	decay := w.Config().WTHDecay

	s := &Snapshot{
		Clock:             clock,
		Wealth:            make(map[agents.AgentID]float64),
		Tasks:             make(map[tasks.TaskID]tasks.Task),
		Nodes:             w.Network().Nodes(),
		Network:           w.Network().Edges(),
		WillingnessToHelp: make(map[agents.AgentID]map[agents.AgentID]float64),
	}
	for _, id := range w.AgentIDs() {
		a := w.Agent(id)
		s.Wealth[id] = a.Wealth
		s.WillingnessToHelp[id] = a.WillingnessMap(clock, decay)
	}
	for _, id := range w.TaskIDs() {
		s.Tasks[id] = w.Task(id).State()
	}
	s.TaskNetwork = BuildTaskNetwork(w)
	return s
}

// BuildTaskNetwork derives worker → owner links from every completed task.
// The owner's own entry in the worker list is not a link.
func BuildTaskNetwork(w *engine.World) []TaskLink {
	weights := make(map[[2]agents.AgentID]int)
	for _, id := range w.TaskIDs() {
		t := w.Task(id)
		if !t.Completed || t.Owner == nil {
			continue
		}
		for _, worker := range t.Workers {
			if worker == *t.Owner {
				continue
			}
			weights[[2]agents.AgentID{worker, *t.Owner}]++
		}
	}

	links := make([]TaskLink, 0, len(weights))
	for k, n := range weights {
		links = append(links, TaskLink{Source: k[0], Target: k[1], Weight: n})
	}
	sortLinks(links)
	return links
}

func sortLinks(links []TaskLink) {
	sort.Slice(links, func(i, j int) bool {
		if links[i].Source != links[j].Source {
			return links[i].Source < links[j].Source
		}
		return links[i].Target < links[j].Target
	})
}

// Snapshots returns every snapshot in collection order.
func (c *Collector) Snapshots() []*Snapshot {
	return c.snapshots
}

// Latest returns the most recent snapshot, or nil.
func (c *Collector) Latest() *Snapshot {
	if len(c.snapshots) == 0 {
		return nil
	}
	return c.snapshots[len(c.snapshots)-1]
}

// Reset drops every snapshot.
func (c *Collector) Reset() {
	c.snapshots = nil
}

var _ engine.Collector = (*Collector)(nil)
