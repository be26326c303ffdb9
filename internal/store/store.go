package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ppiankov/odcfit/internal/model"
	"github.com/ppiankov/odcfit/internal/worker"
)

// Store is a measurement sheet on disk. Writes replace the whole file
// atomically and are throttled per path.
type Store struct {
	path    string
	limiter *worker.Limiter

	mu      sync.Mutex
	dataset *Dataset
}

// Open loads the sheet at path. limiter may be nil for unthrottled writes.
func Open(path string, limiter *worker.Limiter) (*Store, error) {
	s := &Store{path: path, limiter: limiter}
	if _, err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads the sheet at path without keeping a store around
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	ds, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return ds, nil
}

// Path returns the file backing the store
func (s *Store) Path() string {
	return s.path
}

// Dataset returns the current snapshot
func (s *Store) Dataset() *Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataset
}

// Reload re-reads the sheet from disk
func (s *Store) Reload() (*Dataset, error) {
	ds, err := Load(s.path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.dataset = ds
	s.mu.Unlock()
	return ds, nil
}

// SavePatient writes u back and returns the refreshed snapshot. Only the
// patient's own rows change; synthetic anchors are never written.
func (s *Store) SavePatient(ctx context.Context, u model.PatientUpdate) (*Dataset, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, s.path); err != nil {
			return nil, fmt.Errorf("save patient %d: %w", u.PatientID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.dataset.apply(u)
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(s.path, s.dataset.header, rows); err != nil {
		return nil, fmt.Errorf("save patient %d: %w", u.PatientID, err)
	}
	slog.Debug("patient saved", "patient", u.PatientID, "path", s.path, "rows", len(u.Included))

	ds, err := Load(s.path)
	if err != nil {
		return nil, err
	}
	s.dataset = ds
	return ds, nil
}

// writeAtomic writes to a temp file in the same directory and renames it
// over path.
func writeAtomic(path string, header []string, rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpName, info.Mode().Perm())
	}
	return os.Rename(tmpName, path)
}
