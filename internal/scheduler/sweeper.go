package scheduler

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// keptExtensions are never swept: state and configuration live next to reports.
var keptExtensions = map[string]bool{
	".json": true,
	".yaml": true,
	".yml":  true,
}

// Sweeper deletes generated report files older than the retention period.
// Only regular files directly inside dir are considered.
type Sweeper struct {
	dir       string
	retention time.Duration
	now       func() time.Time
}

func NewSweeper(dir string, retention time.Duration) *Sweeper {
	return &Sweeper{dir: dir, retention: retention, now: time.Now}
}

// Sweep removes expired files and returns how many were deleted.
func (s *Sweeper) Sweep() (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("listing %s: %w", s.dir, err)
	}

	cutoff := s.now().Add(-s.retention)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() || keptExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
		slog.Debug("[Sweeper] Removed expired report", "path", path, "modified", info.ModTime())
	}
	return removed, errors.Join(errs...)
}
