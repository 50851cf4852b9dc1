package gaitevo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gaitevo/internal/config"
	gaitio "gaitevo/internal/io"
	"gaitevo/internal/simbody"
)

func newClient(t *testing.T) (*Client, *gaitio.MemorySink) {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Evolution.Seed = 21
	status := &gaitio.MemorySink{}
	client, err := New(Options{Config: cfg, Status: status})
	require.NoError(t, err)
	require.NoError(t, client.Init(context.Background()))
	t.Cleanup(func() { _ = client.Close() })
	return client, status
}

func newBody(t *testing.T, maxTicks int64) *simbody.Body {
	t.Helper()
	cfg := simbody.DefaultConfig()
	cfg.MaxTicks = maxTicks
	body, err := simbody.New(cfg)
	require.NoError(t, err)
	return body
}

func TestEvolveJournalsRun(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()

	summary, err := client.Evolve(ctx, newBody(t, 0), EvolveRequest{Population: 4, Generations: 3, EvalDuration: 600 * time.Millisecond})
	require.NoError(t, err)
	require.NotEmpty(t, summary.RunID)
	require.Equal(t, int64(21), summary.Seed)
	require.Equal(t, 12, summary.Evaluations)
	require.Len(t, summary.BestByGeneration, 3)

	runs, err := client.Runs(ctx, RunsRequest{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].RunID)
	assert.Equal(t, 4, runs[0].Population)
	assert.Equal(t, summary.Best.Fitness, runs[0].BestFitness)

	diagnostics, err := client.Diagnostics(ctx, DiagnosticsRequest{Latest: true})
	require.NoError(t, err)
	require.Len(t, diagnostics, 3)
	assert.Equal(t, 3, diagnostics[2].Generation)

	limited, err := client.Diagnostics(ctx, DiagnosticsRequest{RunID: summary.RunID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)

	history, err := client.FitnessHistory(ctx, FitnessHistoryRequest{RunID: summary.RunID})
	require.NoError(t, err)
	assert.Equal(t, summary.BestByGeneration, history)

	expected := `
# HELP gaitevo_evaluations_total Candidate gait evaluations run.
# TYPE gaitevo_evaluations_total counter
gaitevo_evaluations_total 12
`
	require.NoError(t, testutil.GatherAndCompare(client.Gatherer(), strings.NewReader(expected), "gaitevo_evaluations_total"))
}

func TestRunLookupErrors(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()

	_, err := client.Diagnostics(ctx, DiagnosticsRequest{Latest: true})
	require.Error(t, err, "no runs yet")
	_, err = client.Diagnostics(ctx, DiagnosticsRequest{RunID: "a", Latest: true})
	require.Error(t, err)
	_, err = client.Diagnostics(ctx, DiagnosticsRequest{})
	require.Error(t, err)
	_, err = client.FitnessHistory(ctx, FitnessHistoryRequest{RunID: "missing"})
	require.Error(t, err)
	_, err = client.Runs(ctx, RunsRequest{Limit: -1})
	require.Error(t, err)
}

func TestControllerWalksUntilSimulationEnds(t *testing.T) {
	client, status := newClient(t)
	keys, err := ParseKeys("up,-,left,-,space")
	require.NoError(t, err)

	body := newBody(t, 400)
	ctl, err := client.NewController(body, ScriptedKeys(keys...))
	require.NoError(t, err)
	require.NoError(t, ctl.Run(context.Background()))

	assert.Equal(t, GaitCommand{}, ctl.Command(), "space stops the walk")
	assert.EqualValues(t, 400-26, ctl.Ticks())
	assert.Zero(t, ctl.EvolutionRuns())
	assert.NotEmpty(t, status.Lines())
}

func TestControllerEvolvesOnKey(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Evolution.Seed = 5
	cfg.Evolution.PopulationSize = 3
	cfg.Evolution.Generations = 2
	cfg.Evolution.EvalDuration = 400 * time.Millisecond
	client, err := New(Options{Config: cfg})
	require.NoError(t, err)
	require.NoError(t, client.Init(context.Background()))

	ctl, err := client.NewController(newBody(t, 0), ScriptedKeys(KeyEvolve))
	require.NoError(t, err)
	require.NoError(t, ctl.Tick(context.Background()))
	require.Equal(t, 1, ctl.EvolutionRuns())

	runs, err := client.Runs(context.Background(), RunsRequest{Limit: 5})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.InDelta(t, runs[0].BestForward, ctl.Command().Forward, 1e-12)
	assert.InDelta(t, runs[0].BestTurn, ctl.Command().Turn, 1e-12)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Fall.Threshold = 0
	_, err := New(Options{Config: cfg})
	require.Error(t, err)

	client, _ := newClient(t)
	_, err = client.NewController(nil, ScriptedKeys())
	require.Error(t, err)
	_, err = client.Evolve(context.Background(), nil, EvolveRequest{})
	require.Error(t, err)
}
