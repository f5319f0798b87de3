// Package status provides refresh status tracking and persistence.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

//go:generate mockgen -destination=mocks/mock_persistence.go -package=mocks -source=persistence.go Persistence

const (
	// StatusFileName is the name of the status file
	StatusFileName = "status.json"
)

// Persistence defines the interface for refresh status persistence
type Persistence interface {
	// Save stores the refresh status
	Save(ctx context.Context, status *RefreshStatus) error

	// Load returns the stored refresh status.
	// Returns an empty RefreshStatus if nothing was stored yet (first run).
	Load(ctx context.Context) (*RefreshStatus, error)
}

// filePersistence implements Persistence using the local filesystem
type filePersistence struct {
	dir string
}

var _ Persistence = (*filePersistence)(nil)

// NewFilePersistence creates a file-based status persistence writing <dir>/status.json
func NewFilePersistence(dir string) Persistence {
	return &filePersistence{dir: dir}
}

// Save writes the status as JSON, replacing the previous file atomically
func (f *filePersistence) Save(_ context.Context, status *RefreshStatus) error {
	if err := os.MkdirAll(f.dir, 0750); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	filePath := f.path()
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file: %w", err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file: %w", err)
	}

	return nil
}

// Load reads the status file
func (f *filePersistence) Load(_ context.Context) (*RefreshStatus, error) {
	// #nosec G304 -- path is built from the configured data directory
	data, err := os.ReadFile(f.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &RefreshStatus{Phase: RefreshPhaseIdle}, nil
		}
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	var status RefreshStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}

	return &status, nil
}

func (f *filePersistence) path() string {
	return filepath.Join(f.dir, StatusFileName)
}
