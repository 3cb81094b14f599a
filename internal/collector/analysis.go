package collector

import (
	"github.com/talgya/goalnet/internal/agents"
)

// TaskCount is the number of active and completed tasks at one clock.
type TaskCount struct {
	Clock     float64 `json:"clock"`
	Active    int     `json:"active"`
	Completed int     `json:"completed"`
}

// CountTasks tallies task states in every snapshot.
func (c *Collector) CountTasks() []TaskCount {
	out := make([]TaskCount, 0, len(c.snapshots))
	for _, s := range c.snapshots {
		tc := TaskCount{Clock: s.Clock}
		for _, t := range s.Tasks {
			switch {
			case t.Completed:
				tc.Completed++
			case t.Active:
				tc.Active++
			}
		}
		out = append(out, tc)
	}
	return out
}

// ClockValue is one point of a per-agent series.
type ClockValue struct {
	Clock float64 `json:"clock"`
	Value float64 `json:"value"`
}

// AverageWTH returns, for every agent, the mean willingness to help toward its
// neighbors at each snapshot. Agents with no neighbors at a snapshot are
// skipped for that clock.
func (c *Collector) AverageWTH() map[agents.AgentID][]ClockValue {
	out := make(map[agents.AgentID][]ClockValue)
	for _, s := range c.snapshots {
		for id, row := range s.WillingnessToHelp {
			if len(row) == 0 {
				continue
			}
			sum := 0.0
			for _, v := range row {
				sum += v
			}
			out[id] = append(out[id], ClockValue{Clock: s.Clock, Value: sum / float64(len(row))})
		}
	}
	return out
}

// WealthSeries returns every agent's wealth over time.
func (c *Collector) WealthSeries() map[agents.AgentID][]ClockValue {
	out := make(map[agents.AgentID][]ClockValue)
	for _, s := range c.snapshots {
		for _, id := range sortedAgentKeys(s.Wealth) {
			out[id] = append(out[id], ClockValue{Clock: s.Clock, Value: s.Wealth[id]})
		}
	}
	return out
}

// Gini returns the Gini coefficient of the given wealth distribution, 0 for
// perfect equality. An empty or all-zero distribution yields 0.
func Gini(wealth map[agents.AgentID]float64) float64 {
	n := len(wealth)
	if n == 0 {
		return 0
	}
	total := 0.0
	diff := 0.0
	vals := make([]float64, 0, n)
	for _, v := range wealth {
		vals = append(vals, v)
		total += v
	}
	if total <= 0 {
		return 0
	}
	for _, a := range vals {
		for _, b := range vals {
			if a > b {
				diff += a - b
			} else {
				diff += b - a
			}
		}
	}
	return diff / (2 * float64(n) * total)
}
