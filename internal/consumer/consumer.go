// Package consumer drains published submissions from a spool directory.
// It is the downstream half of the two-phase protocol: it only ever sees
// files after their atomic rename and moves each one to archive/ or
// failed/ once processed.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/pslog"

	"pkt.systems/spoold/internal/spool"
)

const (
	defaultPollInterval  = 10 * time.Second
	defaultSweepInterval = time.Minute
	defaultTempMaxAge    = time.Hour
)

// Processor handles one published submission. A nil error moves the entry
// to archive/, any error moves it to failed/.
type Processor interface {
	Process(ctx context.Context, name string, r io.Reader) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, name string, r io.Reader) error

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, name string, r io.Reader) error {
	return f(ctx, name, r)
}

// ValidateJSON is the default processor. It re-checks that the payload is
// well-formed JSON; the gateway already validated it, so a failure here
// means on-disk corruption or a foreign writer in the spool.
var ValidateJSON = ProcessorFunc(func(_ context.Context, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if !json.Valid(data) {
		return fmt.Errorf("%s: payload is not valid JSON", name)
	}
	return nil
})

// Runner watches a spool directory and processes published submissions.
// Filesystem notifications wake the drain loop; a poll ticker backstops
// them for spools on filesystems without reliable events (NFS).
type Runner struct {
	spool         *spool.Dir
	proc          Processor
	logger        pslog.Logger
	pollInterval  time.Duration
	sweepInterval time.Duration
	tempMaxAge    time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger supplies a structured logger. Defaults to a noop logger.
func WithLogger(l pslog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithProcessor replaces the default JSON validation processor.
func WithProcessor(p Processor) Option {
	return func(r *Runner) {
		if p != nil {
			r.proc = p
		}
	}
}

// WithPollInterval sets the backstop drain interval.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithSweepInterval sets how often aged provisional files are swept.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.sweepInterval = d
		}
	}
}

// WithTempMaxAge sets the age after which an abandoned provisional file is
// removed. Zero disables sweeping.
func WithTempMaxAge(d time.Duration) Option {
	return func(r *Runner) {
		r.tempMaxAge = d
	}
}

// New constructs a Runner draining dir.
func New(dir *spool.Dir, opts ...Option) *Runner {
	r := &Runner{
		spool:         dir,
		proc:          ValidateJSON,
		logger:        pslog.NoopLogger(),
		pollInterval:  defaultPollInterval,
		sweepInterval: defaultSweepInterval,
		tempMaxAge:    defaultTempMaxAge,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains the spool until ctx is canceled. It returns nil on cancel and
// an error only when the watcher cannot be established.
func (r *Runner) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("consumer: create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(r.spool.Path()); err != nil {
		return fmt.Errorf("consumer: watch %s: %w", r.spool.Path(), err)
	}

	r.logger.Info("consumer.start",
		"path", r.spool.Path(),
		"poll_interval", r.pollInterval.String(),
		"temp_max_age", r.tempMaxAge.String(),
	)

	poll := time.NewTicker(r.pollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(r.sweepInterval)
	defer sweep.Stop()

	// Entries published before the runner started have no event coming.
	r.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("consumer.stop")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("consumer: watcher closed")
			}
			// Publishes arrive as renames; Create covers filesystems
			// that report them differently.
			if event.Op.Has(fsnotify.Rename) || event.Op.Has(fsnotify.Create) {
				r.drain(ctx)
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return errors.New("consumer: watcher closed")
			}
			r.logger.Warn("consumer.watch_error", "error", watchErr)
		case <-poll.C:
			r.drain(ctx)
		case <-sweep.C:
			if removed, err := r.spool.SweepTemp(r.tempMaxAge, time.Now()); err != nil {
				r.logger.Warn("consumer.sweep_error", "error", err)
			} else if removed > 0 {
				r.logger.Info("consumer.sweep", "removed", removed)
			}
		}
	}
}

// Drain processes every published submission currently in the spool.
func (r *Runner) Drain(ctx context.Context) {
	r.drain(ctx)
}

func (r *Runner) drain(ctx context.Context) {
	names, err := r.spool.ListComplete()
	if err != nil {
		r.logger.Warn("consumer.list_error", "error", err)
		return
	}
	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		r.processOne(ctx, name)
	}
}

func (r *Runner) processOne(ctx context.Context, name string) {
	path := filepath.Join(r.spool.Path(), name)
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("consumer.open_error", "name", name, "error", err)
		}
		return
	}
	procErr := r.proc.Process(ctx, name, f)
	_ = f.Close()
	if procErr != nil {
		r.logger.Warn("consumer.process_failed", "name", name, "error", procErr)
		if err := r.spool.Fail(name); err != nil {
			r.logger.Warn("consumer.fail_move_error", "name", name, "error", err)
		}
		return
	}
	if err := r.spool.Archive(name); err != nil {
		r.logger.Warn("consumer.archive_move_error", "name", name, "error", err)
		return
	}
	r.logger.Info("consumer.archived", "name", name)
}
