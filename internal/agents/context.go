package agents

import (
	"github.com/talgya/goalnet/internal/entropy"
	"github.com/talgya/goalnet/internal/tasks"
)

// Context is the capability a world hands to an agent for one activation.
// Agents never keep it; they hold only IDs into world-owned registries.
type Context interface {
	Clock() float64
	Rand() *entropy.Source
	Decay() float64

	Agent(id AgentID) *Agent
	Task(id tasks.TaskID) *tasks.Task

	// Deliver puts msg in the receiver's inbox.
	Deliver(msg Message)
	// Connect adds a symmetric edge between a and b in the world network and
	// both neighbor lists. It returns false if the edge could not be added.
	Connect(a, b AgentID) bool
	// IntroduceRandom connects id to a random agent it is not yet linked to.
	IntroduceRandom(id AgentID) bool
}
