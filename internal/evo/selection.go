package evo

import (
	"fmt"
	"math/rand"

	"gaitevo/internal/model"
)

// Selector chooses one parent from an evaluated population.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, population []model.Genotype) (model.Genotype, error)
}

// TournamentSelector draws TournamentSize members uniformly with
// replacement and keeps the fittest. Ties keep the earliest draw.
type TournamentSelector struct {
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, population []model.Genotype) (model.Genotype, error) {
	if rng == nil {
		return model.Genotype{}, fmt.Errorf("random source is required")
	}
	if len(population) == 0 {
		return model.Genotype{}, fmt.Errorf("population is empty")
	}

	tournamentSize := s.TournamentSize
	if tournamentSize <= 0 {
		tournamentSize = 3
	}

	best := population[rng.Intn(len(population))]
	for i := 1; i < tournamentSize; i++ {
		candidate := population[rng.Intn(len(population))]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best, nil
}
