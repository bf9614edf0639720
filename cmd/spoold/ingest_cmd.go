package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"
	"pkt.systems/spoold/internal/consumer"
	"pkt.systems/spoold/internal/spool"
)

func newIngestCommand(baseLogger pslog.Logger) *cobra.Command {
	var (
		spoolDir      string
		pollInterval  time.Duration
		sweepInterval time.Duration
		tempMaxAge    time.Duration
		logLevel      string
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Drain a spool directory: validate submissions and archive or fail them",
		Long: `Ingest watches a spool directory fed by a spoold server, validates each
published submission as JSON, and moves it to the archive/ subdirectory on
success or failed/ on error. Provisional *.temp files older than the sweep
age are removed. Intended as a reference consumer; production pipelines
typically replace the validation step with their own processing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if spoolDir == "" {
				return errors.New("--spool-dir is required")
			}
			logger := baseLogger
			if level, ok := pslog.ParseLevel(strings.TrimSpace(logLevel)); ok {
				logger = logger.LogLevel(level)
			}
			logger = logger.With("sys", "ingest")
			dir, err := spool.Open(spoolDir, spool.WithLogger(logger.With("svc", "spool")))
			if err != nil {
				return err
			}
			runner := consumer.New(dir,
				consumer.WithLogger(logger),
				consumer.WithPollInterval(pollInterval),
				consumer.WithSweepInterval(sweepInterval),
				consumer.WithTempMaxAge(tempMaxAge),
			)
			logger.Info("draining spool", "dir", dir.Path(), "poll_interval", pollInterval)
			err = runner.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&spoolDir, "spool-dir", "d", "", "spool directory to drain (must exist)")
	flags.DurationVar(&pollInterval, "poll-interval", 10*time.Second, "backstop poll interval when filesystem events are missed")
	flags.DurationVar(&sweepInterval, "sweep-interval", time.Minute, "interval between sweeps of aged provisional files")
	flags.DurationVar(&tempMaxAge, "temp-max-age", time.Hour, "age after which an abandoned *.temp file is removed")
	flags.StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	return cmd
}
