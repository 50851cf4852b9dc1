// Package simbody is a deterministic bench body for driving the controller
// without a robot or a physics simulator. It models a single tilt value that
// grows while the gait is commanded beyond its stable amplitudes and is
// cleared by any pose. It is not a dynamics model.
package simbody

import (
	"context"
	"fmt"
	"math"
	"time"

	gaitio "gaitevo/internal/io"
	"gaitevo/internal/model"
)

type Config struct {
	TimeStep         time.Duration `mapstructure:"time_step"`
	MaxTicks         int64         `mapstructure:"max_ticks"`
	RestValue        float64       `mapstructure:"rest_value"`
	StableForward    float64       `mapstructure:"stable_forward"`
	StableTurn       float64       `mapstructure:"stable_turn"`
	StableLateral    float64       `mapstructure:"stable_lateral"`
	TiltGain         float64       `mapstructure:"tilt_gain"`
	FallenTilt       float64       `mapstructure:"fallen_tilt"`
	InitPoseTicks    int           `mapstructure:"init_pose_ticks"`
	RecoverPoseTicks int           `mapstructure:"recover_pose_ticks"`
}

func DefaultConfig() Config {
	return Config{
		TimeStep:         16 * time.Millisecond,
		RestValue:        512,
		StableForward:    1.5,
		StableTurn:       0.8,
		StableLateral:    0.5,
		TiltGain:         40,
		FallenTilt:       300,
		InitPoseTicks:    12,
		RecoverPoseTicks: 90,
	}
}

func (c Config) Validate() error {
	if c.TimeStep <= 0 {
		return fmt.Errorf("time step must be > 0")
	}
	if c.MaxTicks < 0 {
		return fmt.Errorf("max ticks must be >= 0")
	}
	if c.FallenTilt <= 0 || c.TiltGain < 0 {
		return fmt.Errorf("fallen tilt must be > 0 and tilt gain >= 0")
	}
	if c.InitPoseTicks < 0 || c.RecoverPoseTicks < 0 {
		return fmt.Errorf("pose durations must be >= 0")
	}
	return nil
}

// Stats counts what the controller asked the body to do.
type Stats struct {
	Ticks   int64
	Strides int64
	Starts  int
	Stops   int
	Poses   []model.PoseID
	Command model.GaitCommand
	Running bool
	Tilt    float64
}

// Body implements io.Body. It is not safe for concurrent use.
type Body struct {
	cfg Config

	tick    int64
	tilt    float64
	running bool
	stepped bool
	cmd     model.GaitCommand

	strides int64
	starts  int
	stops   int
	poses   []model.PoseID
}

var _ gaitio.Body = (*Body)(nil)

func New(cfg Config) (*Body, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Body{cfg: cfg}, nil
}

func (b *Body) ReadAccelerometer() [3]float64 {
	lateral := b.cfg.RestValue - b.tilt
	return [3]float64{b.cfg.RestValue, lateral, b.cfg.RestValue + math.Abs(b.tilt)/2}
}

func (b *Body) Now() float64 {
	return float64(b.tick) * b.cfg.TimeStep.Seconds()
}

func (b *Body) AdvanceOneTick() bool {
	if b.cfg.MaxTicks > 0 && b.tick >= b.cfg.MaxTicks {
		return false
	}
	b.tick++
	if b.stepped {
		b.integrate()
	}
	b.stepped = false
	return true
}

func (b *Body) integrate() {
	excess := math.Max(0, math.Abs(b.cmd.Forward)-b.cfg.StableForward) +
		math.Max(0, math.Abs(b.cmd.Turn)-b.cfg.StableTurn) +
		math.Max(0, math.Abs(b.cmd.Lateral)-b.cfg.StableLateral)
	if excess == 0 {
		b.tilt *= 0.8
		return
	}
	direction := 1.0
	if b.cmd.Forward < 0 {
		direction = -1.0
	}
	b.tilt += direction * excess * b.cfg.TiltGain
	b.tilt = math.Max(-b.cfg.FallenTilt, math.Min(b.cfg.FallenTilt, b.tilt))
}

func (b *Body) SetForwardAmplitude(v float64) { b.cmd.Forward = v }
func (b *Body) SetTurnAmplitude(v float64)    { b.cmd.Turn = v }
func (b *Body) SetLateralAmplitude(v float64) { b.cmd.Lateral = v }

func (b *Body) Start() {
	b.running = true
	b.starts++
}

func (b *Body) Stop() {
	b.running = false
	b.stops++
}

func (b *Body) StepOneTick() {
	if !b.running {
		return
	}
	b.strides++
	b.stepped = true
}

// Play holds the gait while the pose runs for its configured tick count.
func (b *Body) Play(ctx context.Context, pose model.PoseID) error {
	ticks := b.cfg.InitPoseTicks
	if pose != model.PoseInit {
		ticks = b.cfg.RecoverPoseTicks
	}
	b.running = false
	b.poses = append(b.poses, pose)
	for i := 0; i < ticks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !b.AdvanceOneTick() {
			return gaitio.ErrSimulationEnded
		}
	}
	b.tilt = 0
	return nil
}

// Tilt forces the tilt value, for scripted falls in tests and demos.
func (b *Body) Tilt(v float64) {
	b.tilt = v
}

func (b *Body) Stats() Stats {
	return Stats{
		Ticks:   b.tick,
		Strides: b.strides,
		Starts:  b.starts,
		Stops:   b.stops,
		Poses:   append([]model.PoseID(nil), b.poses...),
		Command: b.cmd,
		Running: b.running,
		Tilt:    b.tilt,
	}
}
