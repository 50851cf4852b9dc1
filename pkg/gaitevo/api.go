// Package gaitevo assembles the walking controller around a host-supplied
// robot body: fall monitoring, keyboard arbitration, on-demand gait
// evolution and the run journal.
package gaitevo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"gaitevo/internal/config"
	"gaitevo/internal/control"
	"gaitevo/internal/evo"
	"gaitevo/internal/fall"
	gaitio "gaitevo/internal/io"
	"gaitevo/internal/metrics"
	"gaitevo/internal/model"
	"gaitevo/internal/scape"
	"gaitevo/internal/storage"
)

type (
	Body                  = gaitio.Body
	CommandSource         = gaitio.CommandSource
	StatusSink            = gaitio.StatusSink
	Key                   = model.Key
	GaitCommand           = model.GaitCommand
	Genotype              = model.Genotype
	GenerationDiagnostics = model.GenerationDiagnostics
	Config                = config.Config
)

const (
	KeyNone   = model.KeyNone
	KeyUp     = model.KeyUp
	KeyDown   = model.KeyDown
	KeyLeft   = model.KeyLeft
	KeyRight  = model.KeyRight
	KeySpace  = model.KeySpace
	KeyEvolve = model.KeyEvolve
)

var ErrSimulationEnded = gaitio.ErrSimulationEnded

// ParseKeys turns a comma separated key script such as "up,up,-,e" into
// keys; "-" is a tick without input.
func ParseKeys(script string) ([]Key, error) {
	return gaitio.ParseKeyScript(script)
}

// ScriptedKeys replays keys one per tick.
func ScriptedKeys(keys ...Key) CommandSource {
	return gaitio.NewScriptedSource(keys...)
}

type Options struct {
	// Config defaults to config.NewDefaultConfig().
	Config *config.Config
	Logger *zap.Logger
	// Registerer receives the controller metrics. nil uses a private
	// registry, reachable through Client.Gatherer.
	Registerer prometheus.Registerer
	// Status receives operator-facing lines. nil logs them.
	Status StatusSink
}

type Client struct {
	cfg      config.Config
	logger   *zap.Logger
	store    storage.Store
	metrics  *metrics.Recorder
	gatherer prometheus.Gatherer
	status   StatusSink
}

func New(opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var gatherer prometheus.Gatherer
	reg := opts.Registerer
	if reg == nil {
		private := prometheus.NewRegistry()
		reg, gatherer = private, private
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	rec, err := metrics.NewRecorder(reg)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(cfg.Store.Kind, cfg.Store.SQLitePath)
	if err != nil {
		return nil, err
	}

	status := opts.Status
	if status == nil {
		status = gaitio.NewLogSink(logger)
	}
	return &Client{
		cfg:      *cfg,
		logger:   logger,
		store:    store,
		metrics:  rec,
		gatherer: gatherer,
		status:   status,
	}, nil
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Config() config.Config {
	return c.cfg
}

// Gatherer exposes the private metrics registry, or nil when the caller
// supplied a Registerer that cannot gather.
func (c *Client) Gatherer() prometheus.Gatherer {
	return c.gatherer
}

// Controller is the per-tick walking controller for one body.
type Controller struct {
	loop   *control.Loop
	engine *evo.Engine
}

// NewController wires a body and a key source into a control loop. The body
// is shared by live control and by gait evaluation, which never overlap.
func (c *Client) NewController(body Body, keys CommandSource) (*Controller, error) {
	if body == nil {
		return nil, errors.New("body is required")
	}
	if keys == nil {
		return nil, errors.New("command source is required")
	}
	monitor, err := fall.NewMonitor(c.cfg.Fall,
		fall.WithRecovery(body, body),
		fall.WithLogger(c.logger),
		fall.WithMetrics(c.metrics),
	)
	if err != nil {
		return nil, err
	}
	arbiter, err := control.NewArbiter(c.cfg.Arbiter)
	if err != nil {
		return nil, err
	}
	engine, err := c.newEngine(body, c.cfg.Evolution.Seed)
	if err != nil {
		return nil, err
	}
	loop, err := control.NewLoop(control.LoopConfig{
		Body:      body,
		Keys:      keys,
		Monitor:   monitor,
		Arbiter:   arbiter,
		Optimizer: engine,
		Params:    c.cfg.Evolution.Params(),
		Store:     c.store,
		Status:    c.status,
		Settings:  c.cfg.Loop,
	}, control.WithLoopLogger(c.logger), control.WithLoopMetrics(c.metrics))
	if err != nil {
		return nil, err
	}
	return &Controller{loop: loop, engine: engine}, nil
}

// Run blocks until the host ends the simulation or ctx is cancelled.
func (ctl *Controller) Run(ctx context.Context) error {
	return ctl.loop.Run(ctx)
}

func (ctl *Controller) Start(ctx context.Context) error {
	return ctl.loop.Start(ctx)
}

func (ctl *Controller) Tick(ctx context.Context) error {
	return ctl.loop.Tick(ctx)
}

func (ctl *Controller) Command() GaitCommand {
	return ctl.loop.Command()
}

func (ctl *Controller) Ticks() int64 {
	return ctl.loop.Ticks()
}

func (ctl *Controller) EvolutionRuns() int {
	return ctl.loop.Runs()
}

type EvolveRequest struct {
	// Zero values fall back to the evolution config.
	Population   int
	Generations  int
	EvalDuration time.Duration
	Seed         int64
}

type EvolveSummary struct {
	RunID            string
	Seed             int64
	Best             Genotype
	BestByGeneration []float64
	Diagnostics      []GenerationDiagnostics
	Evaluations      int
}

// Evolve runs a headless gait search on body and journals it.
func (c *Client) Evolve(ctx context.Context, body Body, req EvolveRequest) (EvolveSummary, error) {
	if body == nil {
		return EvolveSummary{}, errors.New("body is required")
	}
	p := c.cfg.Evolution.Params()
	if req.Population > 0 {
		p.PopulationSize = req.Population
	}
	if req.Generations > 0 {
		p.Generations = req.Generations
	}
	if req.EvalDuration > 0 {
		p.EvalDuration = req.EvalDuration
	}
	seed := c.cfg.Evolution.Seed
	if req.Seed != 0 {
		seed = req.Seed
	}

	engine, err := c.newEngine(body, seed)
	if err != nil {
		return EvolveSummary{}, err
	}
	result, err := engine.Optimize(ctx, p)
	if err != nil {
		return EvolveSummary{}, err
	}

	runID := storage.NewRunID()
	if err := storage.JournalRun(ctx, c.store, result.Record(runID, p), result.BestByGeneration, result.Diagnostics); err != nil {
		return EvolveSummary{}, err
	}
	return EvolveSummary{
		RunID:            runID,
		Seed:             result.Seed,
		Best:             result.Best,
		BestByGeneration: result.BestByGeneration,
		Diagnostics:      result.Diagnostics,
		Evaluations:      result.Evaluations,
	}, nil
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	StartedAtUTC time.Time
	Duration     time.Duration
	Seed         int64
	Population   int
	Generations  int
	EvalDuration time.Duration
	BestFitness  float64
	BestForward  float64
	BestTurn     float64
}

// Runs lists journaled runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(runs) > req.Limit {
		runs = runs[:req.Limit]
	}
	out := make([]RunItem, 0, len(runs))
	for _, r := range runs {
		out = append(out, RunItem{
			RunID:        r.ID,
			StartedAtUTC: r.StartedAt.UTC(),
			Duration:     r.FinishedAt.Sub(r.StartedAt),
			Seed:         r.Seed,
			Population:   r.PopulationSize,
			Generations:  r.Generations,
			EvalDuration: r.EvalDuration,
			BestFitness:  r.Best.Fitness,
			BestForward:  r.Best.Forward,
			BestTurn:     r.Best.Turn,
		})
	}
	return out, nil
}

type DiagnosticsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]GenerationDiagnostics, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	out := make([]GenerationDiagnostics, len(diagnostics))
	copy(out, diagnostics)
	return out, nil
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
}

func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]float64, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	return append([]float64(nil), history...), nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id or latest is required")
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("no runs available")
	}
	return runs[0].ID, nil
}

func (c *Client) newEngine(body Body, seed int64) (*evo.Engine, error) {
	walk, err := scape.NewWalkScape(body, c.cfg.Fall,
		scape.WithLogger(c.logger),
		scape.WithMetrics(c.metrics),
	)
	if err != nil {
		return nil, err
	}
	evoCfg := c.cfg.Evolution
	evoCfg.Seed = seed
	return evo.NewEngine(walk, evoCfg,
		evo.WithLogger(c.logger),
		evo.WithMetrics(c.metrics),
	)
}
