package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	gaitio "gaitevo/internal/io"
	"gaitevo/pkg/gaitevo"
)

// journalNote explains why a fresh process sees no runs with the default store.
const journalNote = `The default store.kind is memory, which lives only as long as one
gaitevoctl process, so runs journaled by an earlier walk or evolve are gone.
To keep runs across invocations build with -tags sqlite and set
store.kind: sqlite (and store.sqlite_path) in the config file, or export
GAITEVO_STORE_KIND=sqlite.`

func newRunsCmd(a *app) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List journaled evolution runs, newest first",
		Long: `List journaled evolution runs, newest first.

` + journalNote,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			ctx := cmd.Context()
			client, err := a.newClient(ctx, gaitio.NewLogSink(a.logger))
			if err != nil {
				return err
			}
			defer client.Close()

			runs, err := client.Runs(ctx, gaitevo.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs found")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tSTARTED\tTOOK\tPOP\tGENS\tBEST\tFORWARD\tTURN")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%.3f\t%.3f\n",
					r.RunID,
					humanize.Time(r.StartedAtUTC),
					r.Duration.Round(time.Millisecond),
					r.Population,
					r.Generations,
					msDuration(r.BestFitness),
					r.BestForward,
					r.BestTurn,
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit runs as JSON")
	return cmd
}

func newDiagnosticsCmd(a *app) *cobra.Command {
	var (
		req     gaitevo.DiagnosticsRequest
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Show per-generation diagnostics of a journaled run",
		Long: `Show per-generation diagnostics of a journaled run.

` + journalNote,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.RunID != "" && req.Latest {
				return errors.New("use either --run-id or --latest, not both")
			}
			if req.RunID == "" && !req.Latest {
				return errors.New("diagnostics requires --run-id or --latest")
			}
			ctx := cmd.Context()
			client, err := a.newClient(ctx, gaitio.NewLogSink(a.logger))
			if err != nil {
				return err
			}
			defer client.Close()

			diagnostics, err := client.Diagnostics(ctx, req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(diagnostics)
			}
			for _, d := range diagnostics {
				fmt.Fprintf(out, "generation=%d best=%.1f mean=%.1f min=%.1f best_ever=%.1f forward=%.4f turn=%.4f survivors=%d\n",
					d.Generation, d.BestFitness, d.MeanFitness, d.MinFitness, d.BestEverFitness, d.BestForward, d.BestTurn, d.SurvivorCount)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.RunID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&req.Latest, "latest", false, "use the most recent run")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "max generations to print (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit diagnostics as JSON")
	return cmd
}
