package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/aevon-lab/spreadsheet-report/internal/core/slug"
	"github.com/aevon-lab/spreadsheet-report/internal/core/storage"
)

// record is the on-disk JSON shape: {"LastSend": "YYYY-MM-DD"}.
type record struct {
	LastSend string `json:"LastSend"`
}

// Store keeps one JSON file per entity at <dir>/<kind>s/<slug(name)>.json.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the state file of key.
func (s *Store) Path(key storage.EntityKey) string {
	return filepath.Join(s.dir, string(key.Kind)+"s", slug.Make(key.Name)+".json")
}

func (s *Store) LastSend(_ context.Context, key storage.EntityKey) (time.Time, error) {
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, storage.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading state of %s: %w", key, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return time.Time{}, fmt.Errorf("decoding state of %s: %w", key, err)
	}
	date, err := time.Parse(storage.DateLayout, rec.LastSend)
	if err != nil {
		return time.Time{}, fmt.Errorf("decoding state of %s: %w", key, err)
	}
	return date, nil
}

// SetLastSend writes through a temp file and renames it into place.
func (s *Store) SetLastSend(_ context.Context, key storage.EntityKey, date time.Time) error {
	path := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	data, err := json.Marshal(record{LastSend: date.Format(storage.DateLayout)})
	if err != nil {
		return fmt.Errorf("encoding state of %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*")
	if err != nil {
		return fmt.Errorf("writing state of %s: %w", key, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing state of %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing state of %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing state of %s: %w", key, err)
	}
	return nil
}
