package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	gaitio "gaitevo/internal/io"
	"gaitevo/internal/simbody"
	"gaitevo/pkg/gaitevo"
)

type walkOptions struct {
	keys     string
	ticks    int64
	mode     string
	realtime bool
}

func newWalkCmd(a *app) *cobra.Command {
	var opts walkOptions
	cmd := &cobra.Command{
		Use:   "walk",
		Short: "Drive the bench body from the keyboard or a key script",
		Long: `Drive the bench body one tick at a time.

Without --keys, one key per line is read from stdin:
  up/w, down/s     change speed
  left/a, right/d  turn
  space or empty   stop
  e                evolve a gait and install it`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("mode") {
				a.cfg.Arbiter.Mode = opts.mode
			}
			if opts.ticks > 0 {
				a.cfg.Sim.MaxTicks = opts.ticks
			}
			if !cmd.Flags().Changed("realtime") {
				opts.realtime = opts.keys == ""
			}
			return a.walk(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.keys, "keys", "", `key script, one entry per tick, e.g. "up,up,-,left,e"`)
	cmd.Flags().Int64Var(&opts.ticks, "ticks", 0, "end the simulation after this many ticks (0 runs until interrupted)")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "arbiter mode: incremental|momentary")
	cmd.Flags().BoolVar(&opts.realtime, "realtime", false, "pace ticks to wall-clock time (default on for keyboard input)")
	return cmd
}

func (a *app) walk(ctx context.Context, cmd *cobra.Command, opts walkOptions) error {
	body, err := simbody.New(a.cfg.Sim)
	if err != nil {
		return err
	}

	var keys gaitevo.CommandSource
	if opts.keys != "" {
		script, err := gaitevo.ParseKeys(opts.keys)
		if err != nil {
			return err
		}
		keys = gaitevo.ScriptedKeys(script...)
	} else {
		keys = gaitio.NewLineSource(os.Stdin, a.logger)
	}

	var host gaitevo.Body = body
	if opts.realtime {
		host = newPacedBody(ctx, body, a.cfg.Sim)
	}

	client, err := a.newClient(ctx, gaitio.NewWriterSink(cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	defer client.Close()
	stopMetrics, err := a.serveMetrics(client)
	if err != nil {
		return err
	}
	defer stopMetrics()

	ctl, err := client.NewController(host, keys)
	if err != nil {
		return err
	}
	if err := ctl.Run(ctx); err != nil {
		return err
	}
	a.logger.Info("walk finished",
		zap.Int64("ticks", ctl.Ticks()),
		zap.Int("evolution_runs", ctl.EvolutionRuns()),
		zap.Any("stats", body.Stats()),
	)
	return nil
}

// pacedBody holds each tick to the configured time step of wall-clock time
// so a human can steer. Cancelling ctx ends the simulation.
type pacedBody struct {
	*simbody.Body
	ctx     context.Context
	limiter *rate.Limiter
}

func newPacedBody(ctx context.Context, body *simbody.Body, cfg simbody.Config) *pacedBody {
	return &pacedBody{
		Body:    body,
		ctx:     ctx,
		limiter: rate.NewLimiter(rate.Every(cfg.TimeStep), 1),
	}
}

func (b *pacedBody) AdvanceOneTick() bool {
	if err := b.limiter.Wait(b.ctx); err != nil {
		return false
	}
	return b.Body.AdvanceOneTick()
}
