package spoold

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidateDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{SpoolDir: t.TempDir()}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Listen != DefaultListen {
		t.Fatalf("expected default listen, got %q", cfg.Listen)
	}
	if cfg.ListenProto != DefaultListenProto {
		t.Fatalf("expected default proto, got %q", cfg.ListenProto)
	}
	if cfg.MaxBodyBytes != DefaultMaxBodyBytes {
		t.Fatalf("expected default max body, got %d", cfg.MaxBodyBytes)
	}
	if cfg.BodyMemoryThreshold != DefaultBodyMemoryThreshold {
		t.Fatalf("expected default threshold, got %d", cfg.BodyMemoryThreshold)
	}
	if cfg.ShutdownTimeout != DefaultShutdownTimeout {
		t.Fatalf("expected default shutdown timeout, got %s", cfg.ShutdownTimeout)
	}
}

func TestConfigValidateRequiresSpoolDir(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "spool dir") {
		t.Fatalf("expected spool dir error, got %v", err)
	}
}

func TestConfigValidateRejectsUnknownProto(t *testing.T) {
	t.Parallel()

	cfg := Config{SpoolDir: t.TempDir(), ListenProto: "udp"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported listen proto")
	}
}

func TestConfigValidateTLSPairing(t *testing.T) {
	t.Parallel()

	cfg := Config{SpoolDir: t.TempDir(), TLSCertFile: "cert.pem"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when only one TLS file is set")
	}
	cfg = Config{SpoolDir: t.TempDir(), TLSCertFile: "cert.pem", TLSKeyFile: "key.pem"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !cfg.TLSEnabled() {
		t.Fatal("expected TLS enabled with both files set")
	}
}

func TestConfigValidateClampsThresholdToMaxBody(t *testing.T) {
	t.Parallel()

	cfg := Config{SpoolDir: t.TempDir(), MaxBodyBytes: 1024, BodyMemoryThreshold: 4096}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.BodyMemoryThreshold != 1024 {
		t.Fatalf("expected threshold clamped to max body, got %d", cfg.BodyMemoryThreshold)
	}
}

func TestConfigValidateRejectsNegativeShutdownTimeout(t *testing.T) {
	t.Parallel()

	cfg := Config{SpoolDir: t.TempDir(), ShutdownTimeout: -time.Second}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative shutdown timeout")
	}
}
