// Package spool persists submission payloads with a two-phase
// write-then-publish protocol. A payload is streamed into a provisional
// ".temp" file and becomes visible to consumers only through a single atomic
// rename; directory listings never observe a half-written submission under
// its final name.
package spool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkt.systems/pslog"
)

const (
	filePrefix = "submission-"
	fileSuffix = ".json"
	// TempSuffix marks provisional files. Consumers must skip names
	// carrying it.
	TempSuffix = ".temp"

	// ArchiveDirName and FailedDirName are the consumer-side destinations
	// for processed submissions.
	ArchiveDirName = "archive"
	FailedDirName  = "failed"
)

// ErrNotDirectory is returned by Open when the spool path is missing or not
// a directory. It is fatal at startup.
var ErrNotDirectory = errors.New("spool: path does not exist or is not a directory")

// Dir is a spool directory shared between the gateway and an external
// consumer. All writers for distinct identifiers proceed in parallel; the
// only synchronization primitive is the atomicity of rename(2).
type Dir struct {
	path   string
	logger pslog.Logger

	// publishDelay runs between the provisional write and the rename.
	// Tests inject it to snapshot the directory mid-publish.
	publishDelay func()
}

// Option configures a Dir.
type Option func(*Dir)

// WithLogger supplies a structured logger. Defaults to a noop logger.
func WithLogger(l pslog.Logger) Option {
	return func(d *Dir) {
		if l != nil {
			d.logger = l
		}
	}
}

// Open validates that path exists and is a directory. The spool must be
// provisioned externally; the gateway refuses to create it.
func Open(path string, opts ...Option) (*Dir, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}
	d := &Dir{
		path:   path,
		logger: pslog.NoopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Path returns the spool directory path.
func (d *Dir) Path() string {
	return d.path
}

// FinalPath returns the published path for id.
func (d *Dir) FinalPath(id string) string {
	return filepath.Join(d.path, filePrefix+id+fileSuffix)
}

// TempPath returns the provisional path for id.
func (d *Dir) TempPath(id string) string {
	return d.FinalPath(id) + TempSuffix
}

// Store streams r into the provisional path for id, syncs it, and publishes
// it under the final name with one rename. On a write failure the
// provisional file is removed; a crash can leave it behind for an external
// sweep, but nothing ever appears under the final name until the payload is
// complete and durable.
//
// Store performs no existence check: identifiers long enough to make
// collisions negligible are the caller's responsibility.
func (d *Dir) Store(ctx context.Context, id string, r io.Reader) (written int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	tempPath := d.TempPath(id)
	finalPath := d.FinalPath(id)

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		d.logger.Debug("spool.store.create_error", "id", id, "error", err)
		return 0, fmt.Errorf("spool: write temp %s: %w", tempPath, err)
	}
	moved := false
	defer func() {
		_ = f.Close()
		if !moved {
			_ = os.Remove(tempPath)
		}
	}()

	written, err = io.Copy(f, r)
	if err != nil {
		d.logger.Debug("spool.store.copy_error", "id", id, "error", err)
		return written, fmt.Errorf("spool: write temp %s: %w", tempPath, err)
	}
	if err := syncFile(f); err != nil {
		d.logger.Debug("spool.store.sync_error", "id", id, "error", err)
		return written, fmt.Errorf("spool: write temp %s: %w", tempPath, err)
	}
	if err := f.Close(); err != nil {
		d.logger.Debug("spool.store.close_error", "id", id, "error", err)
		return written, fmt.Errorf("spool: write temp %s: %w", tempPath, err)
	}

	if d.publishDelay != nil {
		d.publishDelay()
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		d.logger.Debug("spool.store.rename_error", "id", id, "error", err)
		return written, fmt.Errorf("spool: publish %s: %w", finalPath, err)
	}
	moved = true
	_ = syncDir(d.path)
	d.logger.Debug("spool.store.published", "id", id, "bytes", written)
	return written, nil
}

// HasPending reports whether a provisional file for id currently exists.
// Published entries are deliberately not reported: the gateway only tracks
// submissions still in flight.
func (d *Dir) HasPending(id string) bool {
	info, err := os.Stat(d.TempPath(id))
	return err == nil && info.Mode().IsRegular()
}

// CountComplete scans the directory and counts published submissions. The
// count is a best-effort point-in-time gauge; entries mid-publish may be
// missed.
func (d *Dir) CountComplete() int {
	names, err := d.ListComplete()
	if err != nil {
		d.logger.Debug("spool.count.scan_error", "error", err)
		return 0
	}
	return len(names)
}

// ListComplete returns the file names of published submissions in the spool,
// skipping provisional files and the consumer subdirectories.
func (d *Dir) ListComplete() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("spool: list %s: %w", d.path, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Archive moves a published submission into the archive subdirectory. Used
// by the consumer only; the gateway never moves or deletes spool entries.
func (d *Dir) Archive(name string) error {
	return d.moveTo(ArchiveDirName, name)
}

// Fail moves a submission the consumer rejected into the failed
// subdirectory.
func (d *Dir) Fail(name string) error {
	return d.moveTo(FailedDirName, name)
}

func (d *Dir) moveTo(subdir, name string) error {
	if filepath.Base(name) != name {
		return fmt.Errorf("spool: invalid entry name %q", name)
	}
	dest := filepath.Join(d.path, subdir)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("spool: ensure %s dir: %w", subdir, err)
	}
	if err := os.Rename(filepath.Join(d.path, name), filepath.Join(dest, name)); err != nil {
		return fmt.Errorf("spool: move %s to %s: %w", name, subdir, err)
	}
	return nil
}

// SweepTemp removes provisional files older than maxAge, reclaiming space
// leaked by clients that disconnected mid-upload. Returns the number of
// files removed. Invoked by the consumer loop, never by the gateway.
func (d *Dir) SweepTemp(maxAge time.Duration, now time.Time) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return 0, fmt.Errorf("spool: list %s: %w", d.path, err)
	}
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, TempSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}
		path := filepath.Join(d.path, name)
		if err := os.Remove(path); err != nil {
			d.logger.Warn("spool.sweep.remove_error", "path", path, "error", err)
			continue
		}
		d.logger.Info("spool.sweep.removed", "path", path, "age", now.Sub(info.ModTime()).String())
		removed++
	}
	return removed, nil
}

func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}
