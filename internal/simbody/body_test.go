package simbody

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	gaitio "gaitevo/internal/io"
	"gaitevo/internal/model"
)

func newBody(t *testing.T, mutate func(*Config)) *Body {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	b, err := New(cfg)
	require.NoError(t, err)
	return b
}

func TestBodyClockAdvancesPerTick(t *testing.T) {
	b := newBody(t, nil)
	for i := 0; i < 125; i++ {
		require.True(t, b.AdvanceOneTick())
	}
	require.InDelta(t, 2.0, b.Now(), 1e-9)
}

func TestBodyEndsAtMaxTicks(t *testing.T) {
	b := newBody(t, func(c *Config) { c.MaxTicks = 3 })
	require.True(t, b.AdvanceOneTick())
	require.True(t, b.AdvanceOneTick())
	require.True(t, b.AdvanceOneTick())
	require.False(t, b.AdvanceOneTick())
	require.EqualValues(t, 3, b.Stats().Ticks)
}

func TestBodyStableGaitStaysUpright(t *testing.T) {
	b := newBody(t, nil)
	b.Start()
	gaitio.ApplyCommand(b, model.GaitCommand{Forward: 1.0, Turn: 0.3})
	for i := 0; i < 500; i++ {
		b.StepOneTick()
		b.AdvanceOneTick()
	}
	require.Equal(t, 512.0, b.ReadAccelerometer()[1])
	require.EqualValues(t, 500, b.Stats().Strides)
}

func TestBodyAggressiveGaitTipsOver(t *testing.T) {
	b := newBody(t, nil)
	b.Start()
	b.SetForwardAmplitude(2.0)
	for i := 0; i < 20; i++ {
		b.StepOneTick()
		b.AdvanceOneTick()
	}
	require.Equal(t, 512-300.0, b.ReadAccelerometer()[1], "tilt saturates at the fallen value")

	b.Stop()
	b.SetForwardAmplitude(-2.0)
	b.Start()
	require.NoError(t, b.Play(context.Background(), model.PoseInit))
	for i := 0; i < 20; i++ {
		b.StepOneTick()
		b.AdvanceOneTick()
	}
	require.Equal(t, 512.0, b.ReadAccelerometer()[1], "gait is held after a pose until restarted")

	b.Start()
	for i := 0; i < 20; i++ {
		b.StepOneTick()
		b.AdvanceOneTick()
	}
	require.Greater(t, b.ReadAccelerometer()[1], 512.0+80, "walking backwards too fast tips backwards")
}

func TestBodyPlayAdvancesAndClearsTilt(t *testing.T) {
	b := newBody(t, nil)
	b.Tilt(250)
	require.NoError(t, b.Play(context.Background(), model.PoseRecoverFromFrontFall))
	require.EqualValues(t, DefaultConfig().RecoverPoseTicks, b.Stats().Ticks)
	require.Zero(t, b.Stats().Tilt)
	require.Equal(t, []model.PoseID{model.PoseRecoverFromFrontFall}, b.Stats().Poses)
}

func TestBodyPlayReportsSimulationEnd(t *testing.T) {
	b := newBody(t, func(c *Config) { c.MaxTicks = 5 })
	err := b.Play(context.Background(), model.PoseInit)
	require.ErrorIs(t, err, gaitio.ErrSimulationEnded)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeStep = 0
	_, err := New(cfg)
	require.Error(t, err)
}
