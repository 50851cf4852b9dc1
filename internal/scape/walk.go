package scape

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gaitevo/internal/fall"
	gaitio "gaitevo/internal/io"
	"gaitevo/internal/metrics"
	"gaitevo/internal/model"
)

const WalkScapeName = "walk"

// WalkScape scores a gait by how long the robot walks before falling. A
// candidate that never falls scores the whole budget.
//
// Evaluation takes over the body: it resets to the init stance, walks the
// candidate, then stops the gait and resets again. Callers must not drive
// the body while Evaluate runs.
type WalkScape struct {
	body    gaitio.Body
	fallCfg fall.Config
	logger  *zap.Logger
	metrics *metrics.Recorder
}

type WalkOption func(*WalkScape)

func WithLogger(logger *zap.Logger) WalkOption {
	return func(s *WalkScape) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(rec *metrics.Recorder) WalkOption {
	return func(s *WalkScape) {
		s.metrics = rec
	}
}

func NewWalkScape(body gaitio.Body, fallCfg fall.Config, opts ...WalkOption) (*WalkScape, error) {
	if body == nil {
		return nil, fmt.Errorf("body is required")
	}
	if err := fallCfg.Validate(); err != nil {
		return nil, fmt.Errorf("fall config: %w", err)
	}
	s := &WalkScape{
		body:    body,
		fallCfg: fallCfg,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("scape")
	return s, nil
}

func (*WalkScape) Name() string {
	return WalkScapeName
}

func (s *WalkScape) Evaluate(ctx context.Context, candidate model.GaitParams, budget time.Duration) (Fitness, Trace, error) {
	if budget <= 0 {
		return 0, nil, fmt.Errorf("evaluation budget must be > 0, got %s", budget)
	}
	// Each candidate gets its own counters so a half-built tilt from the
	// previous one cannot leak into this score.
	monitor, err := fall.NewMonitor(s.fallCfg, fall.WithLogger(s.logger), fall.WithMetrics(s.metrics))
	if err != nil {
		return 0, nil, err
	}

	if err := s.body.Play(ctx, model.PoseInit); err != nil {
		return 0, nil, fmt.Errorf("reset pose before evaluation: %w", err)
	}
	s.body.Start()
	gaitio.ApplyCommand(s.body, candidate.Command())

	budgetMs := float64(budget) / float64(time.Millisecond)
	start := s.body.Now()
	elapsedMs := 0.0
	ticks := 0
	direction := model.FallNone

	for elapsedMs < budgetMs {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		outcome, fellTo, err := monitor.Check(ctx, s.body.ReadAccelerometer(), fall.ModeDetectOnly)
		if err != nil {
			return 0, nil, err
		}
		if outcome == fall.OutcomeDetected {
			direction = fellTo
			break
		}
		s.body.StepOneTick()
		if !s.body.AdvanceOneTick() {
			return 0, nil, gaitio.ErrSimulationEnded
		}
		ticks++
		elapsedMs = (s.body.Now() - start) * 1000
	}

	if elapsedMs > budgetMs {
		elapsedMs = budgetMs
	}

	s.body.Stop()
	if err := s.body.Play(ctx, model.PoseInit); err != nil {
		return 0, nil, fmt.Errorf("reset pose after evaluation: %w", err)
	}

	s.metrics.ObserveEvaluation(elapsedMs)
	s.logger.Debug("candidate evaluated",
		zap.Float64("forward", candidate.Forward),
		zap.Float64("turn", candidate.Turn),
		zap.Float64("survived_ms", elapsedMs),
		zap.Stringer("fell", direction),
	)
	return Fitness(elapsedMs), Trace{
		"survived_ms": elapsedMs,
		"ticks":       ticks,
		"fell":        direction != model.FallNone,
		"direction":   direction.String(),
		"budget_ms":   budgetMs,
	}, nil
}
