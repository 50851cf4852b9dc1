package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	gaitio "gaitevo/internal/io"
	"gaitevo/internal/simbody"
	"gaitevo/pkg/gaitevo"
)

func newEvolveCmd(a *app) *cobra.Command {
	var (
		req     gaitevo.EvolveRequest
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "evolve",
		Short: "Run a headless gait search on the bench body and journal it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			body, err := simbody.New(a.cfg.Sim)
			if err != nil {
				return err
			}
			client, err := a.newClient(ctx, gaitio.NewLogSink(a.logger))
			if err != nil {
				return err
			}
			defer client.Close()
			stopMetrics, err := a.serveMetrics(client)
			if err != nil {
				return err
			}
			defer stopMetrics()

			summary, err := client.Evolve(ctx, body, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			fmt.Fprintf(out, "run_id=%s seed=%d evaluations=%d\n", summary.RunID, summary.Seed, summary.Evaluations)
			for i, best := range summary.BestByGeneration {
				fmt.Fprintf(out, "generation=%d best_ever=%s\n", i+1, msDuration(best))
			}
			fmt.Fprintf(out, "best forward=%.4f turn=%.4f survived=%s\n",
				summary.Best.Forward, summary.Best.Turn, msDuration(summary.Best.Fitness))
			return nil
		},
	}
	cmd.Flags().IntVar(&req.Population, "population", 0, "population size (0 uses evolution.population)")
	cmd.Flags().IntVar(&req.Generations, "generations", 0, "generation count (0 uses evolution.generations)")
	cmd.Flags().DurationVar(&req.EvalDuration, "eval-duration", 0, "simulated time per candidate (0 uses evolution.eval_duration)")
	cmd.Flags().Int64Var(&req.Seed, "seed", 0, "random seed (0 uses evolution.seed, then the clock)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the summary as JSON")
	return cmd
}

func msDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
