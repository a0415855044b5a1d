package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/eda-agent/backend/pkg/apperr"
	"github.com/eda-agent/backend/pkg/logger"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Store owns the on-disk layout: one directory of immutable dataset files,
// one of profile documents, one of plot artifacts. Dataset identifiers are
// canonical filenames resolved once at upload time.
type Store struct {
	datasetDir string
	profileDir string
	plotDir    string
}

func NewStore(datasetDir, profileDir, plotDir string) (*Store, error) {
	for _, dir := range []string{datasetDir, profileDir, plotDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage dir %s: %w", dir, err)
		}
	}

	logger.Info("Filesystem store initialized",
		zap.String("datasets", datasetDir),
		zap.String("profiles", profileDir),
		zap.String("plots", plotDir),
	)

	return &Store{
		datasetDir: datasetDir,
		profileDir: profileDir,
		plotDir:    plotDir,
	}, nil
}

// CanonicalID sanitizes an uploaded filename into the dataset identifier used
// everywhere downstream.
func CanonicalID(filename string) string {
	base := filepath.Base(filename)
	base = unsafeNameChars.ReplaceAllString(base, "_")
	return strings.Trim(base, "._")
}

// SaveDataset streams an upload to disk and returns the canonical identifier.
// Dataset files are write-once: a re-upload under the same name replaces the
// file atomically.
func (s *Store) SaveDataset(filename string, r io.Reader) (string, int64, error) {
	id := CanonicalID(filename)
	if id == "" {
		return "", 0, apperr.InvalidRequest("invalid dataset filename %q", filename)
	}

	tmp, err := os.CreateTemp(s.datasetDir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return "", 0, fmt.Errorf("failed to write dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close dataset file: %w", err)
	}

	final := filepath.Join(s.datasetDir, id)
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", 0, fmt.Errorf("failed to publish dataset: %w", err)
	}

	logger.Info("Dataset saved", zap.String("dataset", id), zap.Int64("bytes", size))
	return id, size, nil
}

// Resolve maps a dataset identifier to its file path, verifying existence.
func (s *Store) Resolve(datasetID string) (string, int64, error) {
	id := CanonicalID(datasetID)
	if id == "" {
		return "", 0, apperr.NotFound("dataset %q not found", datasetID)
	}

	path := filepath.Join(s.datasetDir, id)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, apperr.NotFound("dataset %q not found", id)
		}
		return "", 0, fmt.Errorf("failed to stat dataset %s: %w", id, err)
	}
	if info.IsDir() {
		return "", 0, apperr.NotFound("dataset %q not found", id)
	}

	return path, info.Size(), nil
}

// Open returns a readable handle on the dataset file.
func (s *Store) Open(datasetID string) (*os.File, error) {
	path, _, err := s.Resolve(datasetID)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", datasetID, err)
	}
	return f, nil
}

// ProfilePath returns the profile document location for a dataset.
func (s *Store) ProfilePath(datasetID string) string {
	return filepath.Join(s.profileDir, CanonicalID(datasetID)+".profile.json")
}

// WriteProfile publishes a profile document atomically: the bytes land in a
// temp file in the same directory, then a rename makes them visible. Readers
// see either the previous document or the complete new one.
func (s *Store) WriteProfile(datasetID string, data []byte) error {
	final := s.ProfilePath(datasetID)

	tmp, err := os.CreateTemp(s.profileDir, ".profile-*")
	if err != nil {
		return fmt.Errorf("failed to create temp profile: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write profile: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close profile: %w", err)
	}

	if err := os.Rename(tmp.Name(), final); err != nil {
		return fmt.Errorf("failed to publish profile: %w", err)
	}
	return nil
}

// ReadProfile returns the last finalized profile document, or NotFound.
func (s *Store) ReadProfile(datasetID string) ([]byte, error) {
	data, err := os.ReadFile(s.ProfilePath(datasetID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound("profile for dataset %q not found", datasetID)
		}
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return data, nil
}

// RemoveProfile deletes the profile document; missing documents are not an
// error.
func (s *Store) RemoveProfile(datasetID string) error {
	err := os.Remove(s.ProfilePath(datasetID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove profile: %w", err)
	}
	return nil
}

// PlotDir is where the plot engine writes artifacts; the static file server
// exposes it read-only.
func (s *Store) PlotDir() string {
	return s.plotDir
}

// WritePlot stores a rendered artifact under its content-addressed name.
func (s *Store) WritePlot(name string, data []byte) (string, error) {
	path := filepath.Join(s.plotDir, name)

	tmp, err := os.CreateTemp(s.plotDir, ".plot-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp plot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write plot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close plot: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to publish plot: %w", err)
	}
	return path, nil
}

// PlotExists reports whether an artifact is already rendered.
func (s *Store) PlotExists(name string) (string, bool) {
	path := filepath.Join(s.plotDir, name)
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path, true
	}
	return "", false
}
