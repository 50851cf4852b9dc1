package evo

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gaitevo/internal/fall"
	gaitio "gaitevo/internal/io"
	"gaitevo/internal/model"
	"gaitevo/internal/scape"
	"gaitevo/internal/simbody"
)

type fakeScape struct {
	fitness func(model.GaitParams) float64
	calls   []model.GaitParams
	// failAt returns err on that call number (1-based) when > 0.
	failAt int
	err    error
}

func (*fakeScape) Name() string { return "fake" }

func (s *fakeScape) Evaluate(_ context.Context, candidate model.GaitParams, _ time.Duration) (scape.Fitness, scape.Trace, error) {
	s.calls = append(s.calls, candidate)
	if s.failAt > 0 && len(s.calls) == s.failAt {
		return 0, nil, s.err
	}
	return scape.Fitness(s.fitness(candidate)), scape.Trace{}, nil
}

func seededConfig(seed int64) Config {
	cfg := DefaultConfig()
	cfg.Seed = seed
	return cfg
}

func TestEliteCount(t *testing.T) {
	cases := map[int]int{0: 0, 1: 1, 4: 1, 5: 1, 6: 2, 10: 2, 11: 3, 15: 3}
	for size, want := range cases {
		assert.Equal(t, want, EliteCount(size), "population %d", size)
	}
}

func TestEngineKeepsEveryGenotypeInBounds(t *testing.T) {
	noise := rand.New(rand.NewSource(11))
	s := &fakeScape{fitness: func(model.GaitParams) float64 { return noise.Float64() * 4000 }}
	cfg := seededConfig(5)
	cfg.ForwardSigma = 1e6
	cfg.TurnSigma = 1e6
	engine, err := NewEngine(s, cfg)
	require.NoError(t, err)

	result, err := engine.Optimize(context.Background(), Params{PopulationSize: 12, Generations: 6, EvalDuration: time.Second})
	require.NoError(t, err)
	require.Len(t, s.calls, 72)

	inBounds := func(p model.GaitParams) {
		require.True(t, cfg.ForwardBounds.Contains(p.Forward), "forward %v", p.Forward)
		require.True(t, cfg.TurnBounds.Contains(p.Turn), "turn %v", p.Turn)
	}
	for _, p := range s.calls {
		inBounds(p)
	}
	for _, g := range result.NextPopulation {
		inBounds(g.Params())
	}
	inBounds(result.Best.Params())
}

func TestEngineBestEverIsMonotonic(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		noise := rand.New(rand.NewSource(seed * 7))
		s := &fakeScape{fitness: func(p model.GaitParams) float64 {
			return 1000*p.Forward + noise.NormFloat64()*300
		}}
		engine, err := NewEngine(s, seededConfig(seed))
		require.NoError(t, err)

		result, err := engine.Optimize(context.Background(), Params{PopulationSize: 10, Generations: 8, EvalDuration: 4 * time.Second})
		require.NoError(t, err)
		require.Len(t, result.BestByGeneration, 8)
		require.Len(t, result.Diagnostics, 8)
		for i := 1; i < len(result.BestByGeneration); i++ {
			require.GreaterOrEqual(t, result.BestByGeneration[i], result.BestByGeneration[i-1], "seed %d generation %d", seed, i+1)
		}
		require.Equal(t, result.BestByGeneration[7], result.Best.Fitness)
		require.True(t, result.Best.Evaluated)
		require.Equal(t, PhaseDone, engine.Phase())
	}
}

func TestEngineElitismCarriesTopFifthUnchanged(t *testing.T) {
	s := &fakeScape{fitness: func(p model.GaitParams) float64 { return 1000*p.Forward + 10*p.Turn }}
	engine, err := NewEngine(s, seededConfig(42), WithMutator(NoopMutator{}))
	require.NoError(t, err)

	result, err := engine.Optimize(context.Background(), Params{PopulationSize: 10, Generations: 1, EvalDuration: 4 * time.Second})
	require.NoError(t, err)
	require.Len(t, result.FinalPopulation, 10)
	require.Len(t, result.NextPopulation, 10)

	assert.Equal(t, result.FinalPopulation[:2], result.NextPopulation[:2])
	assert.GreaterOrEqual(t, result.FinalPopulation[1].Fitness, result.FinalPopulation[2].Fitness)
	for i, child := range result.NextPopulation[2:] {
		assert.False(t, child.Evaluated, "child %d", i)
		assert.Equal(t, model.UnsetFitness, child.Fitness, "child %d", i)
	}
}

func TestEngineTiesKeepFirstCandidate(t *testing.T) {
	s := &fakeScape{fitness: func(model.GaitParams) float64 { return 4000 }}
	engine, err := NewEngine(s, seededConfig(3))
	require.NoError(t, err)

	result, err := engine.Optimize(context.Background(), Params{PopulationSize: 6, Generations: 3, EvalDuration: 4 * time.Second})
	require.NoError(t, err)
	require.Equal(t, s.calls[0], result.Best.Params())
	require.Equal(t, 6, result.Diagnostics[0].SurvivorCount)
}

func TestEngineAbortsOnSimulationEnd(t *testing.T) {
	s := &fakeScape{
		fitness: func(model.GaitParams) float64 { return 1 },
		failAt:  7,
		err:     gaitio.ErrSimulationEnded,
	}
	engine, err := NewEngine(s, seededConfig(1))
	require.NoError(t, err)

	result, err := engine.Optimize(context.Background(), Params{PopulationSize: 5, Generations: 3, EvalDuration: time.Second})
	require.ErrorIs(t, err, gaitio.ErrSimulationEnded)
	require.Len(t, s.calls, 7)
	require.Len(t, result.BestByGeneration, 1)
}

func TestEngineRejectsBadInput(t *testing.T) {
	_, err := NewEngine(nil, DefaultConfig())
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.TurnBounds = model.Bounds{Min: 1, Max: 0}
	_, err = NewEngine(&fakeScape{}, cfg)
	require.Error(t, err)

	engine, err := NewEngine(&fakeScape{}, seededConfig(1))
	require.NoError(t, err)
	for _, p := range []Params{
		{PopulationSize: 0, Generations: 1, EvalDuration: time.Second},
		{PopulationSize: 1, Generations: 0, EvalDuration: time.Second},
		{PopulationSize: 1, Generations: 1},
	} {
		_, err := engine.Optimize(context.Background(), p)
		require.Error(t, err, "%+v", p)
	}
}

func TestEngineSeedIsReproducible(t *testing.T) {
	run := func() RunResult {
		s := &fakeScape{fitness: func(p model.GaitParams) float64 { return 1000*p.Forward - 50*p.Turn }}
		engine, err := NewEngine(s, seededConfig(99))
		require.NoError(t, err)
		result, err := engine.Optimize(context.Background(), Params{PopulationSize: 8, Generations: 4, EvalDuration: time.Second})
		require.NoError(t, err)
		return result
	}
	first, second := run(), run()
	require.Equal(t, first.Best, second.Best)
	require.Equal(t, first.NextPopulation, second.NextPopulation)
	require.Equal(t, int64(99), first.Seed)
}

func TestEngineAgainstWalkScape(t *testing.T) {
	body, err := simbody.New(simbody.DefaultConfig())
	require.NoError(t, err)
	walk, err := scape.NewWalkScape(body, fall.DefaultConfig())
	require.NoError(t, err)
	engine, err := NewEngine(walk, seededConfig(8))
	require.NoError(t, err)

	p := Params{PopulationSize: 4, Generations: 2, EvalDuration: 800 * time.Millisecond}
	result, err := engine.Optimize(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, 8, result.Evaluations)
	require.Greater(t, result.Best.Fitness, 0.0)
	require.False(t, body.Stats().Running, "evaluation leaves the gait stopped")

	rec := result.Record("run-1", p)
	require.Equal(t, "run-1", rec.ID)
	require.Equal(t, 4, rec.PopulationSize)
	require.Equal(t, 2, rec.Generations)
	require.Equal(t, 800*time.Millisecond, rec.EvalDuration)
	require.Equal(t, result.Best, rec.Best)
	require.Equal(t, int64(8), rec.Seed)
	require.False(t, rec.FinishedAt.Before(rec.StartedAt))
}
