package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/talgya/goalnet/internal/entropy"
)

func TestSpawnPopulationTraits(t *testing.T) {
	pop := NewSpawner(entropy.New(200)).SpawnPopulation(25)
	assert.Len(t, pop, 25)
	for i, a := range pop {
		assert.Equal(t, AgentID(i), a.ID)
		for _, trait := range []float64{a.PropensityToHelp, a.Centralization, a.Greed} {
			assert.GreaterOrEqual(t, trait, 0.0)
			assert.Less(t, trait, 1.0)
		}
		assert.Empty(t, a.Network)
		assert.Nil(t, a.Task)
	}
}

func TestSpawnPopulationReproducible(t *testing.T) {
	a := NewSpawner(entropy.New(7)).SpawnPopulation(5)
	b := NewSpawner(entropy.New(7)).SpawnPopulation(5)
	assert.Equal(t, a, b)
}
