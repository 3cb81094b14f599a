// Agent spawning: draws each agent's traits from the world's random source.
package agents

import (
	"github.com/talgya/goalnet/internal/entropy"
)

// Spawner creates agents with uniformly drawn traits.
type Spawner struct {
	rng    *entropy.Source
	nextID AgentID
}

// NewSpawner creates a spawner that draws from rng. IDs start at 0.
func NewSpawner(rng *entropy.Source) *Spawner {
	return &Spawner{rng: rng}
}

// SetNextID sets the next agent ID to be issued.
func (s *Spawner) SetNextID(id AgentID) {
	s.nextID = id
}

// SpawnPopulation creates count agents with consecutive IDs.
func (s *Spawner) SpawnPopulation(count int) []*Agent {
	out := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, s.spawnOne())
	}
	return out
}

func (s *Spawner) spawnOne() *Agent {
	id := s.nextID
	s.nextID++

	// Draw order is fixed so runs stay reproducible.
	propensity := s.rng.Float()
	centralization := s.rng.Float()
	greed := s.rng.Float()
	return NewAgent(id, propensity, centralization, greed)
}
