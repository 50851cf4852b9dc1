package evo

import (
	"math/rand"

	"gaitevo/internal/model"
)

// Crossover combines two parents into one unevaluated child.
type Crossover interface {
	Name() string
	Cross(a, b model.Genotype) model.Genotype
}

// Mutator perturbs a child. Implementations must keep the result inside
// the engine's legal bounds.
type Mutator interface {
	Name() string
	Mutate(rng *rand.Rand, g model.Genotype) model.Genotype
}

// MidpointCrossover averages each amplitude of the two parents.
type MidpointCrossover struct{}

func (MidpointCrossover) Name() string {
	return "midpoint"
}

func (MidpointCrossover) Cross(a, b model.Genotype) model.Genotype {
	return model.NewGenotype((a.Forward+b.Forward)/2, (a.Turn+b.Turn)/2)
}

// GaussianMutator adds independent normal noise to each amplitude, then
// clamps.
type GaussianMutator struct {
	ForwardSigma  float64
	TurnSigma     float64
	ForwardBounds model.Bounds
	TurnBounds    model.Bounds
}

func (GaussianMutator) Name() string {
	return "gaussian"
}

func (m GaussianMutator) Mutate(rng *rand.Rand, g model.Genotype) model.Genotype {
	g.Forward = m.ForwardBounds.Clamp(g.Forward + rng.NormFloat64()*m.ForwardSigma)
	g.Turn = m.TurnBounds.Clamp(g.Turn + rng.NormFloat64()*m.TurnSigma)
	return g
}

// NoopMutator returns children untouched. Useful to observe selection and
// elitism without noise.
type NoopMutator struct{}

func (NoopMutator) Name() string {
	return "noop"
}

func (NoopMutator) Mutate(_ *rand.Rand, g model.Genotype) model.Genotype {
	return g
}
