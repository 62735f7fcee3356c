package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
)

const statusFileName = ".listener_status.json"

// StatusFile implements domain.StatusRegistry using a hidden JSON file in the data directory.
type StatusFile struct {
	path string
}

// NewStatusFile creates a status registry in dataDir.
func NewStatusFile(dataDir string) *StatusFile {
	return &StatusFile{path: filepath.Join(dataDir, statusFileName)}
}

// NewStatusFileWithPath creates a registry at a specific path (for testing).
func NewStatusFileWithPath(path string) *StatusFile {
	return &StatusFile{path: path}
}

// Path returns the status file path.
func (r *StatusFile) Path() string {
	return r.path
}

// Save writes the status record, replacing the previous one.
func (r *StatusFile) Save(status domain.ListenerStatus) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	// Daemon heartbeat and CLI clear may race.
	unlock, err := lockFile(r.path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()

	return atomicWriteJSON(r.path, status)
}

// Load returns the status record, or nil if none has been written.
func (r *StatusFile) Load() (*domain.ListenerStatus, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	var status domain.ListenerStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status file: %w", err)
	}
	return &status, nil
}

// Clear removes the status file. Missing file is not an error.
func (r *StatusFile) Clear() error {
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove status file: %w", err)
	}
	return nil
}

// Ensure StatusFile implements domain.StatusRegistry.
var _ domain.StatusRegistry = (*StatusFile)(nil)
