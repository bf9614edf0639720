package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/pslog"
	"pkt.systems/spoold"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("SPOOLD_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "spoold")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if err != context.Canceled {
			baseLogger.With("sys", "cli.root").Error("command failed", "error", err)
		}
		return 1
	}
	return 0
}

func humanizeBytes(n int64) string {
	return strings.ReplaceAll(humanize.Bytes(uint64(n)), " ", "")
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	var cfg spoold.Config

	cmd := &cobra.Command{
		Use:           "spoold",
		Short:         "spoold is a single-binary JSON ingestion gateway that spools authenticated submissions to a shared directory",
		SilenceErrors: true,
		Example: `
  # Serve on the default port with a real token secret
  SPOOLD_JWT_SECRET=$(openssl rand -hex 32) spoold --spool-dir /var/spool/submissions

  # Serve over a unix socket for a same-host consumer
  spoold --spool-dir /var/spool/submissions --listen-proto unix --listen /run/spoold.sock

  # Expose an unauthenticated Prometheus scrape endpoint on a side listener
  spoold --spool-dir /var/spool/submissions --metrics-listen 127.0.0.1:9090
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := baseLogger
			ctx := cmd.Context()
			cmd.SilenceUsage = true

			configFile, err := loadConfigFile()
			if err != nil {
				return err
			}
			if err := bindConfig(&cfg); err != nil {
				return err
			}
			logLevel := strings.TrimSpace(viper.GetString("log-level"))
			if logLevel == "" {
				logLevel = "info"
			}
			if level, ok := pslog.ParseLevel(logLevel); ok {
				logger = logger.LogLevel(level)
			}
			cliLogger := logger.With("sys", "cli.root")
			if configFile != "" {
				cliLogger.Info("loaded config file", "path", configFile)
			}

			logger.With("sys", "server.lifecycle.init").Info(
				"welcome to spoold",
				"pid", os.Getpid(),
				"uid", os.Getuid(),
				"gid", os.Getgid(),
			)

			server, err := spoold.NewServer(cfg, spoold.WithLogger(logger))
			if err != nil {
				return err
			}

			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					cliLogger.Error("shutdown failed", "error", err)
				}
			}()

			err = server.Start()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file")

	flags := cmd.Flags()
	flags.String("listen", spoold.DefaultListen, "listen address")
	flags.String("listen-proto", spoold.DefaultListenProto, "listen network (tcp, tcp4, tcp6, unix)")
	flags.StringP("spool-dir", "d", "", "spool directory for accepted submissions (must exist)")
	flags.String("jwt-secret", spoold.DefaultSecret, "HS256 secret used to verify bearer tokens (empty disables verification)")
	maxBodyDefault := humanizeBytes(spoold.DefaultMaxBodyBytes)
	bodyMemDefault := humanizeBytes(spoold.DefaultBodyMemoryThreshold)
	flags.String("max-body", maxBodyDefault, "maximum accepted request body size")
	flags.String("body-spool-mem", bodyMemDefault, "bytes to buffer request bodies in memory before spilling to disk")
	flags.String("metrics-listen", "", "metrics listen address (unauthenticated Prometheus scrape endpoint; empty disables)")
	flags.String("pprof-listen", "", "pprof listen address (debug/pprof endpoints; empty disables)")
	flags.String("tls-cert", "", "path to TLS certificate (PEM); requires --tls-key")
	flags.String("tls-key", "", "path to TLS private key (PEM); requires --tls-cert")
	flags.String("otlp-endpoint", "", "OTLP collector endpoint (e.g. grpc://localhost:4317)")
	flags.Duration("shutdown-timeout", spoold.DefaultShutdownTimeout, "maximum time to drain in-flight requests on shutdown")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")

	bindFlag := func(name string) {
		flag := flags.Lookup(name)
		if flag == nil {
			flag = persistentFlags.Lookup(name)
		}
		if flag == nil {
			panic(fmt.Sprintf("flag %q not found", name))
		}
		if err := viper.BindPFlag(name, flag); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("SPOOLD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	names := []string{
		"config",
		"listen", "listen-proto", "spool-dir", "jwt-secret",
		"max-body", "body-spool-mem",
		"metrics-listen", "pprof-listen",
		"tls-cert", "tls-key",
		"otlp-endpoint", "shutdown-timeout", "log-level",
	}
	for _, name := range names {
		bindFlag(name)
	}

	cmd.AddCommand(newTokenCommand())
	cmd.AddCommand(newIngestCommand(baseLogger))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func loadConfigFile() (string, error) {
	cfgPath := strings.TrimSpace(viper.GetString("config"))
	if cfgPath == "" {
		return "", nil
	}
	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	viper.SetConfigFile(expanded)
	if err := viper.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return abs, nil
}

func bindConfig(cfg *spoold.Config) error {
	cfg.Listen = viper.GetString("listen")
	cfg.ListenProto = viper.GetString("listen-proto")
	cfg.SpoolDir = viper.GetString("spool-dir")
	cfg.Secret = viper.GetString("jwt-secret")
	if maxBody := viper.GetString("max-body"); maxBody != "" {
		size, err := humanize.ParseBytes(maxBody)
		if err != nil {
			return fmt.Errorf("parse max-body: %w", err)
		}
		cfg.MaxBodyBytes = int64(size)
	}
	if bodyMem := viper.GetString("body-spool-mem"); bodyMem != "" {
		size, err := humanize.ParseBytes(bodyMem)
		if err != nil {
			return fmt.Errorf("parse body-spool-mem: %w", err)
		}
		cfg.BodyMemoryThreshold = int64(size)
	}
	cfg.MetricsListen = viper.GetString("metrics-listen")
	cfg.PprofListen = viper.GetString("pprof-listen")
	cfg.TLSCertFile = viper.GetString("tls-cert")
	cfg.TLSKeyFile = viper.GetString("tls-key")
	cfg.OTLPEndpoint = viper.GetString("otlp-endpoint")
	cfg.ShutdownTimeout = viper.GetDuration("shutdown-timeout")
	return nil
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
