package io

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gaitevo/internal/model"
)

func TestParseKeyAliases(t *testing.T) {
	cases := map[string]model.Key{
		"up":     model.KeyUp,
		"W":      model.KeyUp,
		" down ": model.KeyDown,
		"a":      model.KeyLeft,
		"Right":  model.KeyRight,
		" ":      model.KeySpace,
		"space":  model.KeySpace,
		"E":      model.KeyEvolve,
		"-":      model.KeyNone,
	}
	for input, want := range cases {
		got, err := ParseKey(input)
		require.NoError(t, err, "input %q", input)
		require.Equal(t, want, got, "input %q", input)
	}
}

func TestParseKeyRejectsUnknown(t *testing.T) {
	_, err := ParseKey("jump")
	require.Error(t, err)

	_, err = ParseKey("")
	require.Error(t, err)
}

func TestParseKeyScript(t *testing.T) {
	keys, err := ParseKeyScript("up, up,-,evolve")
	require.NoError(t, err)
	require.Equal(t, []model.Key{model.KeyUp, model.KeyUp, model.KeyNone, model.KeyEvolve}, keys)

	keys, err = ParseKeyScript("  ")
	require.NoError(t, err)
	require.Empty(t, keys)

	_, err = ParseKeyScript("up,fly")
	require.ErrorContains(t, err, "entry 1")
}
