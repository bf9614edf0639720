package spoold

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultListen is the default bind address for the gateway.
	DefaultListen = ":3000"
	// DefaultListenProto is the default listener network.
	DefaultListenProto = "tcp"
	// DefaultSecret matches the shipped configuration and must be
	// overridden in production. The server warns loudly when it is used.
	DefaultSecret = "secret"
	// DefaultMaxBodyBytes caps incoming submission payload size.
	DefaultMaxBodyBytes = 512 << 20
	// DefaultBodyMemoryThreshold controls memory buffering before a
	// request body spills to a temp file.
	DefaultBodyMemoryThreshold = 4 << 20
	// DefaultShutdownTimeout caps graceful shutdown duration.
	DefaultShutdownTimeout = 30 * time.Second
)

var listenProtoChoices = []string{"tcp", "tcp4", "tcp6", "unix"}

// Config captures the tunables for a spoold.Server instance.
type Config struct {
	// Listen is the server bind address (for example ":3000").
	Listen string
	// ListenProto selects listener type (for example "tcp").
	ListenProto string
	// SpoolDir is the shared spool directory. It must exist; the server
	// refuses to create it.
	SpoolDir string
	// Secret is the shared HMAC key for bearer tokens. Empty disables
	// token verification.
	Secret string
	// MaxBodyBytes caps incoming submission payload size.
	MaxBodyBytes int64
	// BodyMemoryThreshold controls memory buffering before request
	// bodies spill to disk.
	BodyMemoryThreshold int64
	// MetricsListen is an optional unauthenticated metrics endpoint bind
	// address; empty disables it. The in-band /metrics route is always
	// available behind the bearer check.
	MetricsListen string
	// PprofListen is the pprof endpoint bind address; empty disables pprof.
	PprofListen string
	// TLSCertFile and TLSKeyFile enable TLS when both are set.
	TLSCertFile string
	TLSKeyFile  string
	// OTLPEndpoint enables OTLP trace export to the given collector.
	OTLPEndpoint string
	// DisableHTTPTracing disables OpenTelemetry spans for HTTP handlers.
	DisableHTTPTracing bool
	// ShutdownTimeout caps graceful shutdown duration.
	ShutdownTimeout time.Duration
}

// Validate applies defaults and sanity-checks the configuration.
func (c *Config) Validate() error {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.ListenProto == "" {
		c.ListenProto = DefaultListenProto
	}
	valid := false
	for _, proto := range listenProtoChoices {
		if c.ListenProto == proto {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("config: listen proto must be one of %s", strings.Join(listenProtoChoices, ", "))
	}
	if strings.TrimSpace(c.SpoolDir) == "" {
		return fmt.Errorf("config: spool dir is required")
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.BodyMemoryThreshold <= 0 {
		c.BodyMemoryThreshold = DefaultBodyMemoryThreshold
	}
	if c.BodyMemoryThreshold > c.MaxBodyBytes {
		c.BodyMemoryThreshold = c.MaxBodyBytes
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("config: tls cert and key must be set together")
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("config: shutdown timeout must be >= 0")
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return nil
}

// TLSEnabled reports whether the listener should serve TLS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}
