package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gaitevo/internal/evo"
	"gaitevo/internal/fall"
	gaitio "gaitevo/internal/io"
	"gaitevo/internal/metrics"
	"gaitevo/internal/model"
	"gaitevo/internal/storage"
)

// Optimizer runs a blocking gait search. *evo.Engine satisfies it.
type Optimizer interface {
	Optimize(ctx context.Context, p evo.Params) (evo.RunResult, error)
}

type LoopSettings struct {
	StatusInterval time.Duration `mapstructure:"status_interval"`
	Settle         time.Duration `mapstructure:"settle"`
}

func DefaultLoopSettings() LoopSettings {
	return LoopSettings{
		StatusInterval: time.Second,
		Settle:         200 * time.Millisecond,
	}
}

func (s LoopSettings) Validate() error {
	if s.StatusInterval <= 0 {
		return fmt.Errorf("status interval must be > 0")
	}
	if s.Settle < 0 {
		return fmt.Errorf("settle must be >= 0")
	}
	return nil
}

// LoopConfig wires the loop's collaborators. Optimizer and Store are
// optional: without an optimizer the evolve key is ignored, without a store
// runs are not journaled.
type LoopConfig struct {
	Body      gaitio.Body
	Keys      gaitio.CommandSource
	Monitor   *fall.Monitor
	Arbiter   Arbiter
	Optimizer Optimizer
	Params    evo.Params
	Store     storage.Store
	Status    gaitio.StatusSink
	Settings  LoopSettings
}

// Loop drives the robot one simulation tick at a time. It is the only writer
// of the live command; nested recovery and evolution run inside Tick and
// block it until they finish.
type Loop struct {
	cfg     LoopConfig
	logger  *zap.Logger
	metrics *metrics.Recorder
	limiter *rate.Limiter

	cmd          model.GaitCommand
	started      bool
	ticks        int64
	runs         int
	lastStatusAt float64
}

type LoopOption func(*Loop)

func WithLoopLogger(logger *zap.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithLoopMetrics(rec *metrics.Recorder) LoopOption {
	return func(l *Loop) {
		l.metrics = rec
	}
}

func NewLoop(cfg LoopConfig, opts ...LoopOption) (*Loop, error) {
	if cfg.Body == nil {
		return nil, fmt.Errorf("body is required")
	}
	if cfg.Keys == nil {
		return nil, fmt.Errorf("command source is required")
	}
	if cfg.Monitor == nil {
		return nil, fmt.Errorf("fall monitor is required")
	}
	if cfg.Arbiter == nil {
		return nil, fmt.Errorf("arbiter is required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	if cfg.Optimizer != nil {
		if err := cfg.Params.Validate(); err != nil {
			return nil, fmt.Errorf("evolution params: %w", err)
		}
	}

	l := &Loop{
		cfg:     cfg,
		logger:  zap.NewNop(),
		limiter: rate.NewLimiter(rate.Every(cfg.Settings.StatusInterval), 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("control")
	if l.cfg.Status == nil {
		l.cfg.Status = gaitio.NewLogSink(l.logger)
	}
	return l, nil
}

// Command is the live gait command.
func (l *Loop) Command() model.GaitCommand {
	return l.cmd
}

func (l *Loop) Ticks() int64 {
	return l.ticks
}

// Runs counts completed evolution runs.
func (l *Loop) Runs() int {
	return l.runs
}

// Start refreshes the sensors, stands the robot in its init stance, lets it
// settle and starts walking with the arbiter's initial command.
func (l *Loop) Start(ctx context.Context) error {
	if l.started {
		return nil
	}
	body := l.cfg.Body
	if !body.AdvanceOneTick() {
		return gaitio.ErrSimulationEnded
	}
	if err := body.Play(ctx, model.PoseInit); err != nil {
		return fmt.Errorf("init pose: %w", err)
	}
	settleFrom := body.Now()
	for body.Now()-settleFrom < l.cfg.Settings.Settle.Seconds() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !body.AdvanceOneTick() {
			return gaitio.ErrSimulationEnded
		}
	}

	l.cmd = l.cfg.Arbiter.Initial()
	gaitio.ApplyCommand(body, l.cmd)
	body.Start()
	l.started = true
	l.lastStatusAt = body.Now()

	l.logger.Info("walk control started",
		zap.String("arbiter", l.cfg.Arbiter.Name()),
		zap.Float64("forward", l.cmd.Forward),
		zap.Bool("evolution", l.cfg.Optimizer != nil),
	)
	l.cfg.Status.Emit("keys: up/down speed, left/right turn, space stop, e evolve gait")
	return nil
}

// Tick runs one control iteration: poll input, guard against falls, evolve
// or arbitrate, then push the command and advance the simulation.
func (l *Loop) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !l.started {
		if err := l.Start(ctx); err != nil {
			return err
		}
	}
	body := l.cfg.Body

	key, pressed := l.cfg.Keys.PollKey()

	if _, _, err := l.cfg.Monitor.Check(ctx, body.ReadAccelerometer(), fall.ModeRecover); err != nil {
		return fmt.Errorf("fall recovery: %w", err)
	}

	next, evolve := l.cfg.Arbiter.Update(l.cmd, key, pressed)
	if evolve {
		if err := l.evolve(ctx); err != nil {
			return err
		}
	} else {
		l.cmd = next
	}

	gaitio.ApplyCommand(body, l.cmd)
	body.StepOneTick()
	if !body.AdvanceOneTick() {
		return gaitio.ErrSimulationEnded
	}
	l.ticks++
	l.metrics.ObserveTick(l.cmd.Forward, l.cmd.Turn, l.cmd.Lateral)
	l.emitStatus()
	return nil
}

// Run ticks until the host ends the simulation or ctx is cancelled. Both
// are a clean shutdown.
func (l *Loop) Run(ctx context.Context) error {
	err := l.Start(ctx)
	for err == nil {
		err = l.Tick(ctx)
	}
	switch {
	case errors.Is(err, gaitio.ErrSimulationEnded):
		l.logger.Info("simulation ended", zap.Int64("ticks", l.ticks), zap.Int("evolution_runs", l.runs))
		return nil
	case ctx.Err() != nil:
		l.logger.Info("control stopped", zap.Int64("ticks", l.ticks), zap.Error(ctx.Err()))
		return nil
	default:
		return err
	}
}

func (l *Loop) evolve(ctx context.Context) error {
	if l.cfg.Optimizer == nil {
		l.logger.Warn("evolve requested but no optimizer is configured")
		return nil
	}
	p := l.cfg.Params
	l.cfg.Status.Emit(fmt.Sprintf("evolving gait: %d generations of %d candidates, %s each",
		p.Generations, p.PopulationSize, p.EvalDuration))

	result, err := l.cfg.Optimizer.Optimize(ctx, p)
	if err != nil {
		return fmt.Errorf("evolution: %w", err)
	}
	l.runs++

	// The live monitor saw none of the evaluation ticks.
	l.cfg.Monitor.Reset()
	l.cmd = result.Best.Params().Command()
	if r, ok := l.cfg.Arbiter.(Rebaser); ok {
		l.cfg.Arbiter = r.Rebase(l.cmd)
	}
	gaitio.ApplyCommand(l.cfg.Body, l.cmd)
	l.cfg.Body.Start()

	l.cfg.Status.Emit(fmt.Sprintf("evolved gait installed: forward=%.3f turn=%.3f survived=%s",
		l.cmd.Forward, l.cmd.Turn, msDuration(result.Best.Fitness)))
	l.journal(ctx, result)
	return nil
}

func (l *Loop) journal(ctx context.Context, result evo.RunResult) {
	if l.cfg.Store == nil {
		return
	}
	rec := result.Record(storage.NewRunID(), l.cfg.Params)
	if err := storage.JournalRun(ctx, l.cfg.Store, rec, result.BestByGeneration, result.Diagnostics); err != nil {
		l.logger.Warn("journal evolution run", zap.String("run_id", rec.ID), zap.Error(err))
		return
	}
	l.logger.Debug("evolution run journaled", zap.String("run_id", rec.ID))
}

// emitStatus is throttled on simulated time so the cadence does not depend
// on how fast the host steps.
func (l *Loop) emitStatus() {
	now := l.cfg.Body.Now()
	at := time.Unix(0, 0).Add(time.Duration(now * float64(time.Second)))
	if !l.limiter.AllowN(at, 1) {
		return
	}
	since := now - l.lastStatusAt
	l.lastStatusAt = now
	l.cfg.Status.Emit(fmt.Sprintf("tick %s t=%.2fs forward=%.2f turn=%.2f lateral=%.2f up=%.2fs",
		humanize.Comma(l.ticks), now, l.cmd.Forward, l.cmd.Turn, l.cmd.Lateral, since))
}

func msDuration(ms float64) string {
	return time.Duration(ms * float64(time.Millisecond)).String()
}
