package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"gaitevo/internal/model"
)

func NewRunID() string {
	return uuid.NewString()
}

// JournalRun writes a run record together with its per-generation history.
// The record is stamped with the current schema and codec versions.
func JournalRun(ctx context.Context, store Store, run model.RunRecord, history []float64, diagnostics []model.GenerationDiagnostics) error {
	if store == nil {
		return fmt.Errorf("store is required")
	}
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	run.VersionedRecord = CurrentVersion()
	if err := store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	if err := store.SaveFitnessHistory(ctx, run.ID, history); err != nil {
		return fmt.Errorf("save fitness history %s: %w", run.ID, err)
	}
	if err := store.SaveGenerationDiagnostics(ctx, run.ID, diagnostics); err != nil {
		return fmt.Errorf("save diagnostics %s: %w", run.ID, err)
	}
	return nil
}
