package control

import (
	"fmt"
	"strings"

	"gaitevo/internal/model"
)

const (
	ArbiterIncremental = "incremental"
	ArbiterMomentary   = "momentary"
)

// Arbiter merges at most one key per tick into the live command. evolve is
// true when the key asks for an evolutionary search instead.
type Arbiter interface {
	Name() string
	Initial() model.GaitCommand
	Update(prev model.GaitCommand, key model.Key, pressed bool) (next model.GaitCommand, evolve bool)
}

// Rebaser is implemented by arbiters that do not carry the previous command
// forward. The loop hands them an evolved gait to walk from instead.
type Rebaser interface {
	Rebase(cmd model.GaitCommand) Arbiter
}

type ArbiterConfig struct {
	Mode             string       `mapstructure:"mode"`
	SpeedStep        float64      `mapstructure:"speed_step"`
	TurnStep         float64      `mapstructure:"turn_step"`
	ForwardBounds    model.Bounds `mapstructure:"forward_bounds"`
	TurnBounds       model.Bounds `mapstructure:"turn_bounds"`
	BaselineSpeed    float64      `mapstructure:"baseline_speed"`
	MomentaryTurn    float64      `mapstructure:"momentary_turn"`
	MomentaryLateral float64      `mapstructure:"momentary_lateral"`
}

func DefaultArbiterConfig() ArbiterConfig {
	return ArbiterConfig{
		Mode:             ArbiterIncremental,
		SpeedStep:        0.2,
		TurnStep:         0.2,
		ForwardBounds:    model.Bounds{Min: -1, Max: 2},
		TurnBounds:       model.Bounds{Min: -1, Max: 1},
		BaselineSpeed:    1.0,
		MomentaryTurn:    0.5,
		MomentaryLateral: 0.2,
	}
}

func (c ArbiterConfig) Validate() error {
	if !c.ForwardBounds.Valid() || !c.TurnBounds.Valid() {
		return fmt.Errorf("arbiter bounds must satisfy min <= max")
	}
	if c.SpeedStep <= 0 || c.TurnStep <= 0 {
		return fmt.Errorf("arbiter steps must be > 0")
	}
	return nil
}

func NewArbiter(cfg ArbiterConfig) (Arbiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch strings.TrimSpace(strings.ToLower(cfg.Mode)) {
	case "", ArbiterIncremental:
		return IncrementalArbiter{
			SpeedStep:     cfg.SpeedStep,
			TurnStep:      cfg.TurnStep,
			ForwardBounds: cfg.ForwardBounds,
			TurnBounds:    cfg.TurnBounds,
			Start:         cfg.ForwardBounds.Clamp(cfg.BaselineSpeed),
		}, nil
	case ArbiterMomentary:
		return MomentaryArbiter{
			Speed:   cfg.ForwardBounds.Clamp(cfg.BaselineSpeed),
			Turn:    cfg.MomentaryTurn,
			Lateral: cfg.MomentaryLateral,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported arbiter mode: %s", cfg.Mode)
	}
}

// IncrementalArbiter latches a forward/turn setpoint that keys nudge.
type IncrementalArbiter struct {
	SpeedStep     float64
	TurnStep      float64
	ForwardBounds model.Bounds
	TurnBounds    model.Bounds
	Start         float64
}

func (IncrementalArbiter) Name() string {
	return ArbiterIncremental
}

func (a IncrementalArbiter) Initial() model.GaitCommand {
	return model.GaitCommand{Forward: a.Start}
}

func (a IncrementalArbiter) Update(prev model.GaitCommand, key model.Key, pressed bool) (model.GaitCommand, bool) {
	next := model.GaitCommand{Forward: prev.Forward, Turn: prev.Turn}
	if pressed {
		switch key {
		case model.KeyUp:
			next.Forward += a.SpeedStep
		case model.KeyDown:
			next.Forward -= a.SpeedStep
		case model.KeyLeft:
			next.Turn += a.TurnStep
		case model.KeyRight:
			next.Turn -= a.TurnStep
		case model.KeySpace:
			next.Forward, next.Turn = 0, 0
		case model.KeyEvolve:
			return a.clamp(next), true
		}
	}
	return a.clamp(next), false
}

func (a IncrementalArbiter) clamp(cmd model.GaitCommand) model.GaitCommand {
	cmd.Forward = a.ForwardBounds.Clamp(cmd.Forward)
	cmd.Turn = a.TurnBounds.Clamp(cmd.Turn)
	return cmd
}

// MomentaryArbiter walks at a constant speed and heading; turn and side-step
// keys last only for the tick they arrive on.
type MomentaryArbiter struct {
	Speed float64
	// BaseTurn is the heading held without input, zero until an evolved gait
	// is installed.
	BaseTurn float64
	Turn     float64
	Lateral  float64
}

func (MomentaryArbiter) Name() string {
	return ArbiterMomentary
}

func (a MomentaryArbiter) Initial() model.GaitCommand {
	return model.GaitCommand{Forward: a.Speed, Turn: a.BaseTurn}
}

// Rebase returns a copy that walks at cmd's forward and turn amplitudes.
func (a MomentaryArbiter) Rebase(cmd model.GaitCommand) Arbiter {
	a.Speed = cmd.Forward
	a.BaseTurn = cmd.Turn
	return a
}

func (a MomentaryArbiter) Update(_ model.GaitCommand, key model.Key, pressed bool) (model.GaitCommand, bool) {
	next := a.Initial()
	if !pressed {
		return next, false
	}
	switch key {
	case model.KeyLeft:
		next.Turn = a.BaseTurn + a.Turn
	case model.KeyRight:
		next.Turn = a.BaseTurn - a.Turn
	case model.KeySpace:
		next.Turn = 0
	case model.KeyUp:
		next.Lateral = a.Lateral
	case model.KeyDown:
		next.Lateral = -a.Lateral
	case model.KeyEvolve:
		return next, true
	}
	return next, false
}
