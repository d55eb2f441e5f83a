// -----------------------------------------------------------------------
// Artifact Store - Durable report files keyed by task ID
// -----------------------------------------------------------------------

package artifacts

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tabula/internal/interfaces"
)

// Store persists report artifacts on the filesystem. The key for task T is
// always <dir>/<T>.csv, so any reader can derive the location from the task
// ID alone. Writes go through a temp file plus rename so a partially
// written artifact is never visible at the final path.
type Store struct {
	dir    string
	logger arbor.ILogger
}

// NewStore creates an artifact store rooted at dir
func NewStore(dir string, logger arbor.ILogger) (interfaces.ArtifactStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Path returns the deterministic artifact path for a task ID
func (s *Store) Path(taskID string) string {
	return filepath.Join(s.dir, taskID+".csv")
}

// Write durably persists the artifact and returns its final path. The file
// is synced before rename; completion must not be recorded before the bytes
// are on disk.
func (s *Store) Write(taskID string, data []byte) (string, error) {
	if taskID == "" {
		return "", fmt.Errorf("task ID is required")
	}

	finalPath := s.Path(taskID)

	tmp, err := os.CreateTemp(s.dir, taskID+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close artifact: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to finalize artifact: %w", err)
	}

	s.logger.Debug().
		Str("task_id", taskID).
		Str("path", finalPath).
		Int("bytes", len(data)).
		Msg("Artifact written")

	return finalPath, nil
}

// Exists reports whether the artifact for the task is present
func (s *Store) Exists(taskID string) bool {
	info, err := os.Stat(s.Path(taskID))
	return err == nil && !info.IsDir()
}

// Read returns the artifact bytes for the task
func (s *Store) Read(taskID string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(taskID))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact for %s: %w", taskID, err)
	}
	return data, nil
}
