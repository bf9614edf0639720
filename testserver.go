package spoold

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"

	"pkt.systems/pslog"
)

// TestServer wraps a running spoold.Server with convenient handles for tests.
type TestServer struct {
	Server  *Server
	BaseURL string
	Config  Config

	stop func(context.Context) error
}

type testingWriter struct {
	t  testing.TB
	mu sync.Mutex
	// closed guards against writes after the associated test has finished.
	closed bool
}

func (w *testingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return len(p), nil
	}
	lines := bytes.Split(p, []byte{'\n'})
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		w.t.Helper()
		func(entry string) {
			defer func() {
				if r := recover(); r != nil {
					msg := fmt.Sprint(r)
					if strings.Contains(msg, "Log in goroutine after") {
						return
					}
					if strings.Contains(msg, "Log in goroutine during concurrent Cleanups") {
						return
					}
					panic(r)
				}
			}()
			w.t.Log(entry)
		}(string(line))
	}
	w.mu.Unlock()
	return len(p), nil
}

func (w *testingWriter) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// NewTestingLogger creates a pslog logger that writes through testing.TB.
func NewTestingLogger(t testing.TB, level pslog.Level) pslog.Logger {
	writer := &testingWriter{t: t}
	t.Cleanup(writer.close)
	return pslog.NewStructured(writer).LogLevel(level).With("app", "testserver")
}

// StartTestServer boots a server on an ephemeral loopback port, registers a
// cleanup that stops it, and returns handles for the test.
func StartTestServer(t testing.TB, cfg Config, opts ...Option) *TestServer {
	t.Helper()
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:0"
	}
	if cfg.ListenProto == "" {
		cfg.ListenProto = "tcp"
	}
	cfg.DisableHTTPTracing = true
	if !hasLoggerOption(opts) {
		opts = append(opts, WithLogger(NewTestingLogger(t, pslog.DebugLevel)))
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv, stop, err := StartServer(ctx, cfg, opts...)
	if err != nil {
		cancel()
		t.Fatalf("start test server: %v", err)
	}
	t.Cleanup(func() {
		_ = stop(context.Background())
		cancel()
	})
	ts := &TestServer{
		Server: srv,
		Config: cfg,
		stop:   stop,
	}
	if addr := srv.ListenerAddr(); addr != nil {
		scheme := "http"
		if cfg.TLSEnabled() {
			scheme = "https"
		}
		ts.BaseURL = fmt.Sprintf("%s://%s", scheme, addr.String())
	}
	return ts
}

func hasLoggerOption(opts []Option) bool {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o.Logger != nil
}

// Stop shuts down the server using the provided context.
func (ts *TestServer) Stop(ctx context.Context) error {
	if ts == nil || ts.stop == nil {
		return nil
	}
	return ts.stop(ctx)
}

// URL returns the base URL clients should use to reach the server.
func (ts *TestServer) URL() string {
	if ts == nil {
		return ""
	}
	return ts.BaseURL
}

// Addr returns the listener address the server is bound to.
func (ts *TestServer) Addr() net.Addr {
	if ts == nil || ts.Server == nil {
		return nil
	}
	return ts.Server.ListenerAddr()
}
