package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("artifact not found")
	ErrTampered = errors.New("artifact does not match its manifest")
)

// Base file names. Every run prefixes them with "<model id prefix>_", and
// with timestamps on additionally with "<20060102_150405>_".
const (
	PredictionsFile = "predictions.csv"
	ImportanceFile  = "feature_importance.csv"
	ModelFile       = "model.json"
	ManifestFile    = "manifest.json"
)

// Layout is where one training run writes its files. With timestamps off
// the newest reports are also published under the bare file names, in
// LatestPredictions and LatestImportance.
type Layout struct {
	Dir         string
	Predictions string
	Importance  string
	Model       string
	Manifest    string

	LatestPredictions string
	LatestImportance  string
}

// Store writes run outputs under root/<owner>/. Files are written to a
// temporary name and renamed into place so readers never see partial files.
type Store struct {
	root        string
	timestamped bool

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewStore(root string, timestamped bool) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Store{root: abs, timestamped: timestamped, locks: map[uuid.UUID]*sync.Mutex{}}, nil
}

// Root returns the absolute output directory.
func (s *Store) Root() string { return s.root }

// Layout returns the file paths of a run and creates the owner directory.
func (s *Store) Layout(owner, modelID uuid.UUID, at time.Time) (Layout, error) {
	dir := filepath.Join(s.root, owner.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Layout{}, fmt.Errorf("create owner dir: %w", err)
	}
	prefix := modelID.String()[:8] + "_"
	if s.timestamped {
		prefix = at.UTC().Format("20060102_150405") + "_" + prefix
	}
	l := Layout{
		Dir:         dir,
		Predictions: filepath.Join(dir, prefix+PredictionsFile),
		Importance:  filepath.Join(dir, prefix+ImportanceFile),
		Model:       filepath.Join(dir, prefix+ModelFile),
		Manifest:    filepath.Join(dir, prefix+ManifestFile),
	}
	if !s.timestamped {
		l.LatestPredictions = filepath.Join(dir, PredictionsFile)
		l.LatestImportance = filepath.Join(dir, ImportanceFile)
	}
	return l, nil
}

// Lock serializes writers of the fixed latest-report names of one owner.
// With timestamped names nothing is shared and Lock is a no-op.
func (s *Store) Lock(owner uuid.UUID) func() {
	if s.timestamped {
		return func() {}
	}
	s.mu.Lock()
	l, ok := s.locks[owner]
	if !ok {
		l = &sync.Mutex{}
		s.locks[owner] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Write streams fn's output into path atomically.
func (s *Store) Write(path string, fn func(io.Writer) error) error {
	if err := s.contains(path); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := fn(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Remove deletes a stored file; a missing file is not an error.
func (s *Store) Remove(path string) error {
	if err := s.contains(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Open opens a stored file. Missing files and paths outside the store
// return ErrNotFound.
func (s *Store) Open(path string) (*os.File, error) {
	if path == "" || s.contains(path) != nil {
		return nil, ErrNotFound
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Exists reports whether path is a stored, non-empty file.
func (s *Store) Exists(path string) bool {
	if path == "" || s.contains(path) != nil {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

func (s *Store) contains(path string) error {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is outside the output directory", ErrNotFound, path)
	}
	return nil
}
