// Willingness to help: a recency-weighted reading of an agent's interaction history.
package agents

import "math"

// MinElapsed is the smallest time difference used in decay. Events logged at
// the current clock would otherwise divide by zero.
const MinElapsed = 0.01

// DefaultDecay is the default decay exponent β.
const DefaultDecay = 1.0

// WillingnessToHelp scores how willing a is to help other at clock.
//
// Each history event contributes value / Δt^β. Events about other are summed
// as-is; events about anyone else are summed and divided by the neighbor count.
// The two sums are averaged and a propensity term that fades with the clock is added.
func (a *Agent) WillingnessToHelp(other AgentID, clock, decay float64) float64 {
	var about, rest float64
	for _, ev := range a.History {
		dt := math.Max(MinElapsed, clock-ev.Time)
		v := ev.Value / math.Pow(dt, decay)
		if ev.Counterparty == other {
			about += v
		} else {
			rest += v
		}
	}
	rest /= math.Max(1, float64(len(a.Network)))

	wth := (about + rest) / 2
	wth += a.PropensityToHelp / math.Pow(math.Max(MinElapsed, clock), decay)
	return wth
}

// helpWeight is the floored willingness used for both action choice and payoff splits.
func (a *Agent) helpWeight(ctx Context, other AgentID) float64 {
	return math.Max(0, a.WillingnessToHelp(other, ctx.Clock(), ctx.Decay()))
}

// WillingnessMap scores every neighbor of a.
func (a *Agent) WillingnessMap(clock, decay float64) map[AgentID]float64 {
	out := make(map[AgentID]float64, len(a.Network))
	for id := range a.Network {
		out[id] = a.WillingnessToHelp(id, clock, decay)
	}
	return out
}
