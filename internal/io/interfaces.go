package io

import (
	"context"
	"errors"

	"gaitevo/internal/model"
)

// ErrSimulationEnded is returned once the host stops advancing the clock.
var ErrSimulationEnded = errors.New("simulation ended")

// SensorPort exposes the robot's accelerometer and the simulation clock.
type SensorPort interface {
	ReadAccelerometer() [3]float64
	// Now reports simulated time in seconds.
	Now() float64
	// AdvanceOneTick returns false when the host signals end-of-run.
	AdvanceOneTick() bool
}

// GaitController turns amplitude commands into per-tick joint trajectories.
type GaitController interface {
	SetForwardAmplitude(v float64)
	SetTurnAmplitude(v float64)
	SetLateralAmplitude(v float64)
	Start()
	Stop()
	StepOneTick()
}

// PoseSequencer plays a named pose to completion, advancing the clock as it
// goes. It returns ErrSimulationEnded if the host stops mid-pose.
type PoseSequencer interface {
	Play(ctx context.Context, pose model.PoseID) error
}

// CommandSource is polled once per tick and never blocks.
type CommandSource interface {
	PollKey() (model.Key, bool)
}

type StatusSink interface {
	Emit(text string)
}

// Body bundles the collaborators a physical or simulated robot provides.
type Body interface {
	SensorPort
	GaitController
	PoseSequencer
}

// ApplyCommand pushes all three amplitudes to the gait controller.
func ApplyCommand(gait GaitController, cmd model.GaitCommand) {
	gait.SetForwardAmplitude(cmd.Forward)
	gait.SetTurnAmplitude(cmd.Turn)
	gait.SetLateralAmplitude(cmd.Lateral)
}
