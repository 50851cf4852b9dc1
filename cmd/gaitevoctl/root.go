package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gaitevo/internal/config"
	"gaitevo/internal/metrics"
	"gaitevo/internal/observability"
	"gaitevo/pkg/gaitevo"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// app carries what PersistentPreRunE builds for the subcommands.
type app struct {
	cfgFile  string
	logLevel string
	cfg      *config.Config
	logger   *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "gaitevoctl",
		Short:         "Walk a humanoid with fall recovery and evolve its gait.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.Logger.Level = a.logLevel
			}
			a.cfg = cfg
			a.logger = observability.NewStdoutLogger(cfg.Logger)
			a.logger.Debug("configuration loaded", zap.String("file", a.cfgFile), zap.Any("config", cfg))
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logger.level")

	root.AddCommand(
		newWalkCmd(a),
		newEvolveCmd(a),
		newRunsCmd(a),
		newDiagnosticsCmd(a),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), Version)
			return err
		},
	}
}

func (a *app) newClient(ctx context.Context, status gaitevo.StatusSink) (*gaitevo.Client, error) {
	client, err := gaitevo.New(gaitevo.Options{Config: a.cfg, Logger: a.logger, Status: status})
	if err != nil {
		return nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// serveMetrics starts the exposition endpoint when configured. The returned
// stop func is always safe to call.
func (a *app) serveMetrics(client *gaitevo.Client) (func(), error) {
	if a.cfg.Metrics.ListenAddr == "" || client.Gatherer() == nil {
		return func() {}, nil
	}
	srv, err := metrics.Listen(a.cfg.Metrics.ListenAddr, client.Gatherer(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
