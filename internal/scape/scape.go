package scape

import (
	"context"
	"time"

	"gaitevo/internal/model"
)

type Fitness float64

type Trace map[string]any

// Scape scores one candidate gait within a simulated-time budget.
type Scape interface {
	Name() string
	Evaluate(ctx context.Context, candidate model.GaitParams, budget time.Duration) (Fitness, Trace, error)
}
