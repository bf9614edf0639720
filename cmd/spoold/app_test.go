package main

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"pkt.systems/pslog"
	"pkt.systems/spoold"
)

func TestBindConfigAppliesFlagValues(t *testing.T) {
	root := newRootCommand(pslog.NewStructured(io.Discard))
	flags := root.Flags()
	mustSet := func(name, value string) {
		t.Helper()
		if err := flags.Set(name, value); err != nil {
			t.Fatalf("set --%s: %v", name, err)
		}
	}
	mustSet("listen", "127.0.0.1:8080")
	mustSet("spool-dir", "/tmp/spool")
	mustSet("jwt-secret", "hunter2")
	mustSet("max-body", "1MB")
	mustSet("body-spool-mem", "64KB")
	mustSet("metrics-listen", "127.0.0.1:9090")
	mustSet("shutdown-timeout", "5s")

	var cfg spoold.Config
	if err := bindConfig(&cfg); err != nil {
		t.Fatalf("bindConfig: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" {
		t.Fatalf("listen not bound: %q", cfg.Listen)
	}
	if cfg.SpoolDir != "/tmp/spool" {
		t.Fatalf("spool-dir not bound: %q", cfg.SpoolDir)
	}
	if cfg.Secret != "hunter2" {
		t.Fatalf("jwt-secret not bound: %q", cfg.Secret)
	}
	if cfg.MaxBodyBytes != 1000000 {
		t.Fatalf("max-body not parsed: %d", cfg.MaxBodyBytes)
	}
	if cfg.BodyMemoryThreshold != 64000 {
		t.Fatalf("body-spool-mem not parsed: %d", cfg.BodyMemoryThreshold)
	}
	if cfg.MetricsListen != "127.0.0.1:9090" {
		t.Fatalf("metrics-listen not bound: %q", cfg.MetricsListen)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Fatalf("shutdown-timeout not bound: %s", cfg.ShutdownTimeout)
	}
}

func TestBindConfigRejectsUnparsableSize(t *testing.T) {
	newRootCommand(pslog.NewStructured(io.Discard))
	viper.Set("max-body", "a lot")
	defer viper.Set("max-body", "")

	var cfg spoold.Config
	err := bindConfig(&cfg)
	if err == nil || !strings.Contains(err.Error(), "max-body") {
		t.Fatalf("expected max-body parse error, got %v", err)
	}
}

func TestRootCommandDeclaresServerFlags(t *testing.T) {
	root := newRootCommand(pslog.NewStructured(io.Discard))
	for _, name := range []string{
		"listen", "listen-proto", "spool-dir", "jwt-secret",
		"max-body", "body-spool-mem", "metrics-listen", "pprof-listen",
		"tls-cert", "tls-key", "otlp-endpoint", "shutdown-timeout", "log-level",
	} {
		if root.Flags().Lookup(name) == nil {
			t.Fatalf("missing flag --%s", name)
		}
	}
	if flag := root.Flags().ShorthandLookup("d"); flag == nil || flag.Name != "spool-dir" {
		t.Fatalf("expected -d shorthand for --spool-dir, got %#v", flag)
	}
}

func TestHumanizeBytesHasNoSpaces(t *testing.T) {
	if got := humanizeBytes(spoold.DefaultMaxBodyBytes); strings.ContainsRune(got, ' ') {
		t.Fatalf("expected compact size string, got %q", got)
	}
}
