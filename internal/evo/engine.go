package evo

import (
	"cmp"
	"context"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"go.uber.org/zap"

	"gaitevo/internal/metrics"
	"gaitevo/internal/model"
	"gaitevo/internal/scape"
)

// Phase is the engine's position in the generation cycle.
type Phase int

const (
	PhaseInitialized Phase = iota
	PhaseEvaluating
	PhaseSelecting
	PhaseReproducing
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialized:
		return "initialized"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseSelecting:
		return "selecting"
	case PhaseReproducing:
		return "reproducing"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Params sizes a single optimization run.
type Params struct {
	PopulationSize int
	Generations    int
	EvalDuration   time.Duration
}

func (p Params) Validate() error {
	if p.PopulationSize <= 0 {
		return fmt.Errorf("population size must be > 0")
	}
	if p.Generations <= 0 {
		return fmt.Errorf("generations must be > 0")
	}
	if p.EvalDuration <= 0 {
		return fmt.Errorf("evaluation duration must be > 0")
	}
	return nil
}

type Config struct {
	PopulationSize int           `mapstructure:"population"`
	Generations    int           `mapstructure:"generations"`
	EvalDuration   time.Duration `mapstructure:"eval_duration"`
	TournamentSize int           `mapstructure:"tournament_size"`
	ForwardSigma   float64       `mapstructure:"forward_sigma"`
	TurnSigma      float64       `mapstructure:"turn_sigma"`
	ForwardBounds  model.Bounds  `mapstructure:"forward_bounds"`
	TurnBounds     model.Bounds  `mapstructure:"turn_bounds"`
	// Seed 0 seeds from the wall clock.
	Seed int64 `mapstructure:"seed"`
}

func DefaultConfig() Config {
	return Config{
		PopulationSize: 10,
		Generations:    15,
		EvalDuration:   4000 * time.Millisecond,
		TournamentSize: 3,
		ForwardSigma:   0.1,
		TurnSigma:      0.05,
		ForwardBounds:  model.Bounds{Min: 0, Max: 2},
		TurnBounds:     model.Bounds{Min: -1, Max: 1},
	}
}

func (c Config) Params() Params {
	return Params{
		PopulationSize: c.PopulationSize,
		Generations:    c.Generations,
		EvalDuration:   c.EvalDuration,
	}
}

func (c Config) Validate() error {
	if err := c.Params().Validate(); err != nil {
		return err
	}
	if c.TournamentSize <= 0 {
		return fmt.Errorf("tournament size must be > 0")
	}
	if c.ForwardSigma < 0 || c.TurnSigma < 0 {
		return fmt.Errorf("mutation sigma must be >= 0")
	}
	if !c.ForwardBounds.Valid() {
		return fmt.Errorf("invalid forward bounds: %+v", c.ForwardBounds)
	}
	if !c.TurnBounds.Valid() {
		return fmt.Errorf("invalid turn bounds: %+v", c.TurnBounds)
	}
	return nil
}

// EliteCount is the number of top-ranked genotypes carried unchanged into
// the next generation: a fifth of the population, rounded up.
func EliteCount(populationSize int) int {
	if populationSize <= 0 {
		return 0
	}
	return (populationSize + 4) / 5
}

type RunResult struct {
	Best             model.Genotype
	BestByGeneration []float64
	Diagnostics      []model.GenerationDiagnostics
	// FinalPopulation is the last evaluated generation, ranked.
	FinalPopulation []model.Genotype
	// NextPopulation is what the last reproduction step produced. It has not
	// been evaluated beyond its elites.
	NextPopulation []model.Genotype
	Evaluations    int
	Seed           int64
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Record converts the result into a journal entry.
func (r RunResult) Record(runID string, p Params) model.RunRecord {
	return model.RunRecord{
		ID:             runID,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		PopulationSize: p.PopulationSize,
		Generations:    p.Generations,
		EvalDuration:   p.EvalDuration,
		Seed:           r.Seed,
		Best:           r.Best,
	}
}

// Engine runs a generational genetic search over gait amplitudes. It is
// synchronous: Optimize returns only once every generation has been scored.
type Engine struct {
	cfg       Config
	scape     scape.Scape
	selector  Selector
	crossover Crossover
	mutator   Mutator
	rng       *rand.Rand
	seed      int64
	logger    *zap.Logger
	metrics   *metrics.Recorder
	phase     Phase
}

type Option func(*Engine)

func WithSelector(s Selector) Option {
	return func(e *Engine) {
		if s != nil {
			e.selector = s
		}
	}
}

func WithCrossover(c Crossover) Option {
	return func(e *Engine) {
		if c != nil {
			e.crossover = c
		}
	}
}

func WithMutator(m Mutator) Option {
	return func(e *Engine) {
		if m != nil {
			e.mutator = m
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = rec
	}
}

func NewEngine(s scape.Scape, cfg Config, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("scape is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	e := &Engine{
		cfg:       cfg,
		scape:     s,
		selector:  TournamentSelector{TournamentSize: cfg.TournamentSize},
		crossover: MidpointCrossover{},
		mutator: GaussianMutator{
			ForwardSigma:  cfg.ForwardSigma,
			TurnSigma:     cfg.TurnSigma,
			ForwardBounds: cfg.ForwardBounds,
			TurnBounds:    cfg.TurnBounds,
		},
		rng:    rand.New(rand.NewSource(seed)),
		seed:   seed,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("evo")
	return e, nil
}

func (e *Engine) Seed() int64 {
	return e.seed
}

func (e *Engine) Phase() Phase {
	return e.phase
}

// Optimize searches for the gait that survives longest. Any error from the
// scape aborts the run; io.ErrSimulationEnded is returned wrapped.
func (e *Engine) Optimize(ctx context.Context, p Params) (RunResult, error) {
	if err := p.Validate(); err != nil {
		return RunResult{}, err
	}
	result := RunResult{
		Seed:             e.seed,
		StartedAt:        time.Now().UTC(),
		BestByGeneration: make([]float64, 0, p.Generations),
		Diagnostics:      make([]model.GenerationDiagnostics, 0, p.Generations),
	}

	e.phase = PhaseInitialized
	population := e.initialPopulation(p.PopulationSize)
	best := population[0]
	eliteCount := EliteCount(p.PopulationSize)
	budgetMs := float64(p.EvalDuration) / float64(time.Millisecond)

	e.logger.Info("evolution started",
		zap.Int("population", p.PopulationSize),
		zap.Int("generations", p.Generations),
		zap.Duration("eval_duration", p.EvalDuration),
		zap.Int64("seed", e.seed),
	)

	var ranked []model.Genotype
	for gen := 1; gen <= p.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		e.phase = PhaseEvaluating
		for i := range population {
			fitness, _, err := e.scape.Evaluate(ctx, population[i].Params(), p.EvalDuration)
			if err != nil {
				return result, fmt.Errorf("generation %d candidate %d: %w", gen, i, err)
			}
			population[i].Fitness = float64(fitness)
			population[i].Evaluated = true
			result.Evaluations++
			if population[i].Fitness > best.Fitness {
				best = population[i]
			}
		}

		e.phase = PhaseSelecting
		ranked = rankPopulation(population)
		diag := summarizeGeneration(gen, ranked, best, budgetMs)
		result.Diagnostics = append(result.Diagnostics, diag)
		result.BestByGeneration = append(result.BestByGeneration, best.Fitness)
		e.metrics.ObserveGeneration(best.Fitness)
		e.logger.Info("generation complete",
			zap.Int("generation", gen),
			zap.Float64("best_ever_ms", best.Fitness),
			zap.Float64("forward", best.Forward),
			zap.Float64("turn", best.Turn),
			zap.Float64("mean_ms", diag.MeanFitness),
			zap.Int("survivors", diag.SurvivorCount),
		)

		e.phase = PhaseReproducing
		next, err := e.reproduce(ranked, eliteCount)
		if err != nil {
			return result, fmt.Errorf("generation %d reproduction: %w", gen, err)
		}
		population = next
	}

	e.phase = PhaseDone
	result.Best = best
	result.FinalPopulation = ranked
	result.NextPopulation = population
	result.FinishedAt = time.Now().UTC()
	e.metrics.ObserveEvolutionDone()
	e.logger.Info("evolution done",
		zap.Float64("best_ms", best.Fitness),
		zap.Float64("forward", best.Forward),
		zap.Float64("turn", best.Turn),
		zap.Int("evaluations", result.Evaluations),
	)
	return result, nil
}

func (e *Engine) initialPopulation(size int) []model.Genotype {
	population := make([]model.Genotype, size)
	for i := range population {
		population[i] = model.NewGenotype(
			uniform(e.rng, e.cfg.ForwardBounds),
			uniform(e.rng, e.cfg.TurnBounds),
		)
	}
	return population
}

func (e *Engine) reproduce(ranked []model.Genotype, eliteCount int) ([]model.Genotype, error) {
	next := make([]model.Genotype, 0, len(ranked))
	next = append(next, ranked[:eliteCount]...)
	for len(next) < len(ranked) {
		a, err := e.selector.PickParent(e.rng, ranked)
		if err != nil {
			return nil, err
		}
		b, err := e.selector.PickParent(e.rng, ranked)
		if err != nil {
			return nil, err
		}
		child := e.mutator.Mutate(e.rng, e.crossover.Cross(a, b))
		child.Forward = e.cfg.ForwardBounds.Clamp(child.Forward)
		child.Turn = e.cfg.TurnBounds.Clamp(child.Turn)
		next = append(next, child)
	}
	return next, nil
}

func uniform(rng *rand.Rand, b model.Bounds) float64 {
	return b.Min + rng.Float64()*(b.Max-b.Min)
}

// rankPopulation sorts a copy by fitness, best first. Equal fitness keeps
// population order.
func rankPopulation(population []model.Genotype) []model.Genotype {
	ranked := slices.Clone(population)
	slices.SortStableFunc(ranked, func(a, b model.Genotype) int {
		return cmp.Compare(b.Fitness, a.Fitness)
	})
	return ranked
}

func summarizeGeneration(generation int, ranked []model.Genotype, best model.Genotype, budgetMs float64) model.GenerationDiagnostics {
	diag := model.GenerationDiagnostics{
		Generation:      generation,
		BestEverFitness: best.Fitness,
		BestForward:     best.Forward,
		BestTurn:        best.Turn,
	}
	if len(ranked) == 0 {
		return diag
	}
	diag.BestFitness = ranked[0].Fitness
	diag.MinFitness = ranked[len(ranked)-1].Fitness
	total := 0.0
	for _, g := range ranked {
		total += g.Fitness
		if g.Fitness >= budgetMs {
			diag.SurvivorCount++
		}
	}
	diag.MeanFitness = total / float64(len(ranked))
	return diag
}
