// Package backup keeps timestamped copies of the workbook and prunes
// the oldest ones.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
)

const timestampLayout = "20060102_150405"

// Snapshotter writes a copy of a workbook to dst.
type Snapshotter interface {
	Snapshot(ctx context.Context, dst string) error
}

// Manager writes backups into one directory and keeps at most MaxFiles
// per prefix.
type Manager struct {
	dir      string
	maxFiles int
	now      func() time.Time
}

// NewManager creates a Manager. maxFiles below 1 is treated as 1.
func NewManager(dir string, maxFiles int) *Manager {
	return &Manager{dir: dir, maxFiles: max(maxFiles, 1), now: time.Now}
}

// Result describes one completed backup.
type Result struct {
	Path   string
	Size   int64
	Pruned []string
}

// String renders the result for a chat reply.
func (r Result) String() string {
	return fmt.Sprintf("%s (%s)", filepath.Base(r.Path), humanize.Bytes(uint64(r.Size)))
}

// Backup snapshots src into <dir>/<prefix>_<YYYYMMDD_HHMMSS>.xlsx and
// prunes older backups of the same prefix.
func (m *Manager) Backup(ctx context.Context, src Snapshotter, prefix string) (Result, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create backup directory: %w", err)
	}

	dst := filepath.Join(m.dir, fmt.Sprintf("%s_%s.xlsx", prefix, m.now().Format(timestampLayout)))
	if err := src.Snapshot(ctx, dst); err != nil {
		return Result{}, fmt.Errorf("failed to write backup: %w", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return Result{}, fmt.Errorf("failed to stat backup: %w", err)
	}

	pruned, err := m.Prune(prefix)
	if err != nil {
		// The new backup exists; a failed cleanup only leaves extra files.
		log.Warn().Err(err).Str("prefix", prefix).Msg("Failed to prune old backups")
	}

	log.Info().
		Str("path", dst).
		Str("size", humanize.Bytes(uint64(info.Size()))).
		Int("pruned", len(pruned)).
		Msg("Backup written")

	return Result{Path: dst, Size: info.Size(), Pruned: pruned}, nil
}

type backupFile struct {
	path    string
	name    string
	modTime time.Time
}

// List returns the backups of a prefix, newest first. Ties on
// modification time are broken by name, later names first.
func (m *Manager) List(prefix string) ([]string, error) {
	files, err := m.scan(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}

// Prune deletes all but the newest MaxFiles backups of a prefix and
// returns the deleted paths.
func (m *Manager) Prune(prefix string) ([]string, error) {
	files, err := m.scan(prefix)
	if err != nil {
		return nil, err
	}
	if len(files) <= m.maxFiles {
		return nil, nil
	}

	var pruned []string
	var errs []error
	for _, f := range files[m.maxFiles:] {
		if err := os.Remove(f.path); err != nil {
			errs = append(errs, err)
			continue
		}
		pruned = append(pruned, f.path)
	}
	if len(errs) > 0 {
		return pruned, fmt.Errorf("failed to remove %d old backups: %w", len(errs), errs[0])
	}
	return pruned, nil
}

func (m *Manager) scan(prefix string) ([]backupFile, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	var files []backupFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"_") || filepath.Ext(name) != ".xlsx" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, backupFile{path: filepath.Join(m.dir, name), name: name, modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].modTime.Equal(files[j].modTime) {
			return files[i].modTime.After(files[j].modTime)
		}
		return files[i].name > files[j].name
	})
	return files, nil
}
