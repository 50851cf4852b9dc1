package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gaitevo/internal/model"
)

func sampleRun(id string, started time.Time) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: CurrentVersion(),
		ID:              id,
		StartedAt:       started,
		FinishedAt:      started.Add(2 * time.Minute),
		PopulationSize:  10,
		Generations:     15,
		EvalDuration:    4 * time.Second,
		Seed:            7,
		Best:            model.Genotype{Forward: 1.2, Turn: -0.1, Fitness: 4000, Evaluated: true},
	}
}

// exerciseStore runs the journal contract against any backend.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := sampleRun("run-a", base)
	newer := sampleRun("run-b", base.Add(time.Hour))

	history := []float64{1200, 3100, 4000}
	diagnostics := []model.GenerationDiagnostics{
		{Generation: 1, BestFitness: 1200, MeanFitness: 800, MinFitness: 100, BestEverFitness: 1200, BestForward: 1.9, BestTurn: 0.2},
		{Generation: 2, BestFitness: 3100, MeanFitness: 1500, MinFitness: 300, BestEverFitness: 3100, BestForward: 1.4, BestTurn: 0.1, SurvivorCount: 0},
		{Generation: 3, BestFitness: 4000, MeanFitness: 2500, MinFitness: 600, BestEverFitness: 4000, BestForward: 1.2, BestTurn: -0.1, SurvivorCount: 3},
	}
	require.NoError(t, JournalRun(ctx, store, older, history, diagnostics))
	require.NoError(t, JournalRun(ctx, store, newer, history[:1], diagnostics[:1]))

	got, ok, err := store.GetRun(ctx, "run-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, older.ID, got.ID)
	require.True(t, older.StartedAt.Equal(got.StartedAt))
	require.Equal(t, older.Best, got.Best)
	require.Equal(t, older.EvalDuration, got.EvalDuration)

	_, ok, err = store.GetRun(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-b", runs[0].ID)
	require.Equal(t, "run-a", runs[1].ID)

	gotHistory, ok, err := store.GetFitnessHistory(ctx, "run-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, history, gotHistory)

	gotDiagnostics, ok, err := store.GetGenerationDiagnostics(ctx, "run-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, diagnostics, gotDiagnostics)

	_, ok, err = store.GetGenerationDiagnostics(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreJournal(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	err := store.SaveRun(context.Background(), sampleRun("x", time.Now()))
	require.Error(t, err)
}

func TestMemoryStoreCopiesHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Init(ctx))

	history := []float64{1, 2}
	require.NoError(t, store.SaveFitnessHistory(ctx, "r", history))
	history[0] = 99
	got, _, err := store.GetFitnessHistory(ctx, "r")
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2}, got)
}

func TestJournalRunValidates(t *testing.T) {
	ctx := context.Background()
	require.Error(t, JournalRun(ctx, nil, sampleRun("x", time.Now()), nil, nil))

	store := NewMemoryStore()
	require.NoError(t, store.Init(ctx))
	require.Error(t, JournalRun(ctx, store, model.RunRecord{}, nil, nil))
}

func TestJournalRunStampsVersions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Init(ctx))

	run := sampleRun("v", time.Now())
	run.VersionedRecord = model.VersionedRecord{}
	require.NoError(t, JournalRun(ctx, store, run, nil, nil))
	got, _, err := store.GetRun(ctx, "v")
	require.NoError(t, err)
	require.Equal(t, CurrentVersion(), got.VersionedRecord)
}

func TestNewRunIDIsUnique(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	require.NotEqual(t, a, b)
	require.Len(t, a, 36)
}
