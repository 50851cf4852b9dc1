package control

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gaitevo/internal/model"
)

func newIncremental(t *testing.T) Arbiter {
	t.Helper()
	arb, err := NewArbiter(DefaultArbiterConfig())
	require.NoError(t, err)
	require.Equal(t, ArbiterIncremental, arb.Name())
	return arb
}

func TestIncrementalArbiterUpUpDown(t *testing.T) {
	arb := newIncremental(t)
	step := DefaultArbiterConfig().SpeedStep

	cmd := model.GaitCommand{Forward: 1.0}
	for _, key := range []model.Key{model.KeyUp, model.KeyUp, model.KeyDown} {
		var evolve bool
		cmd, evolve = arb.Update(cmd, key, true)
		require.False(t, evolve)
	}
	assert.InDelta(t, 1.0+step, cmd.Forward, 1e-12)
	assert.Zero(t, cmd.Turn)
}

func TestIncrementalArbiterSpaceZeroes(t *testing.T) {
	arb := newIncremental(t)
	cmd, _ := arb.Update(model.GaitCommand{Forward: 1.8, Turn: -0.6}, model.KeySpace, true)
	assert.Equal(t, model.GaitCommand{}, cmd)
}

func TestIncrementalArbiterHoldsWithoutInput(t *testing.T) {
	arb := newIncremental(t)
	prev := model.GaitCommand{Forward: 0.4, Turn: 0.2, Lateral: 0.3}
	cmd, evolve := arb.Update(prev, model.KeyNone, false)
	require.False(t, evolve)
	assert.Equal(t, model.GaitCommand{Forward: 0.4, Turn: 0.2}, cmd)
}

func TestIncrementalArbiterClamps(t *testing.T) {
	arb := newIncremental(t)
	rng := rand.New(rand.NewSource(3))
	keys := []model.Key{model.KeyUp, model.KeyDown, model.KeyLeft, model.KeyRight, model.KeySpace, model.KeyNone}

	cmd := arb.Initial()
	for i := 0; i < 5000; i++ {
		cmd, _ = arb.Update(cmd, keys[rng.Intn(len(keys))], rng.Intn(4) != 0)
		require.GreaterOrEqual(t, cmd.Forward, -1.0)
		require.LessOrEqual(t, cmd.Forward, 2.0)
		require.GreaterOrEqual(t, cmd.Turn, -1.0)
		require.LessOrEqual(t, cmd.Turn, 1.0)
	}

	cmd = model.GaitCommand{Forward: 2.0, Turn: 1.0}
	cmd, _ = arb.Update(cmd, model.KeyUp, true)
	cmd, _ = arb.Update(cmd, model.KeyLeft, true)
	assert.Equal(t, model.GaitCommand{Forward: 2.0, Turn: 1.0}, cmd)
}

func TestIncrementalArbiterEvolveKey(t *testing.T) {
	arb := newIncremental(t)
	prev := model.GaitCommand{Forward: 0.6, Turn: 0.2}
	cmd, evolve := arb.Update(prev, model.KeyEvolve, true)
	require.True(t, evolve)
	assert.Equal(t, prev, cmd)
}

func TestMomentaryArbiter(t *testing.T) {
	cfg := DefaultArbiterConfig()
	cfg.Mode = "Momentary"
	arb, err := NewArbiter(cfg)
	require.NoError(t, err)
	require.Equal(t, ArbiterMomentary, arb.Name())

	prev := model.GaitCommand{Forward: 0.1, Turn: 0.9, Lateral: 0.2}
	cases := []struct {
		key  model.Key
		want model.GaitCommand
	}{
		{key: model.KeyLeft, want: model.GaitCommand{Forward: 1, Turn: 0.5}},
		{key: model.KeyRight, want: model.GaitCommand{Forward: 1, Turn: -0.5}},
		{key: model.KeyUp, want: model.GaitCommand{Forward: 1, Lateral: 0.2}},
		{key: model.KeyDown, want: model.GaitCommand{Forward: 1, Lateral: -0.2}},
		{key: model.KeySpace, want: model.GaitCommand{Forward: 1}},
	}
	for _, tc := range cases {
		got, evolve := arb.Update(prev, tc.key, true)
		require.False(t, evolve)
		assert.Equal(t, tc.want, got, "key %s", tc.key)
	}

	got, _ := arb.Update(prev, model.KeyNone, false)
	assert.Equal(t, model.GaitCommand{Forward: 1}, got)

	_, evolve := arb.Update(prev, model.KeyEvolve, true)
	assert.True(t, evolve)
}

func TestNewArbiterRejectsBadConfig(t *testing.T) {
	cfg := DefaultArbiterConfig()
	cfg.Mode = "joystick"
	_, err := NewArbiter(cfg)
	require.Error(t, err)

	cfg = DefaultArbiterConfig()
	cfg.TurnBounds = model.Bounds{Min: 1, Max: -1}
	_, err = NewArbiter(cfg)
	require.Error(t, err)
}

func TestMomentaryArbiterRebase(t *testing.T) {
	cfg := DefaultArbiterConfig()
	cfg.Mode = ArbiterMomentary
	arb, err := NewArbiter(cfg)
	require.NoError(t, err)

	rebaser, ok := arb.(Rebaser)
	require.True(t, ok)
	arb = rebaser.Rebase(model.GaitCommand{Forward: 1.3, Turn: 0.4})

	prev := model.GaitCommand{Forward: 0.2, Turn: -0.7}
	got, evolve := arb.Update(prev, model.KeyNone, false)
	require.False(t, evolve)
	assert.Equal(t, model.GaitCommand{Forward: 1.3, Turn: 0.4}, got)
	assert.Equal(t, got, arb.Initial())

	got, _ = arb.Update(prev, model.KeyLeft, true)
	assert.InDelta(t, 0.9, got.Turn, 1e-9)
	assert.InDelta(t, 1.3, got.Forward, 1e-9)
	got, _ = arb.Update(prev, model.KeyRight, true)
	assert.InDelta(t, -0.1, got.Turn, 1e-9)
	got, _ = arb.Update(prev, model.KeySpace, true)
	assert.Equal(t, model.GaitCommand{Forward: 1.3}, got)

	_, isRebaser := Arbiter(IncrementalArbiter{}).(Rebaser)
	assert.False(t, isRebaser, "incremental carries the previous command itself")
}
