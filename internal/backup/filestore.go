package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore abstracts durable artifact storage so the service can be tested
// without touching disk and later pointed at object storage.
type FileStore interface {
	// Write persists data at the path derived from backupID and returns
	// that path.
	Write(backupID string, data []byte) (string, error)

	// Read returns the artifact previously written for backupID.
	Read(backupID string) ([]byte, error)

	// Remove deletes the artifact for backupID. A missing artifact is not
	// an error; retention sweeps must tolerate files deleted out of band.
	Remove(backupID string) error
}

// LocalFileStore keeps backup artifacts as JSON files under a single
// directory, one file per backup.
type LocalFileStore struct {
	dir string
}

// NewLocalFileStore creates a LocalFileStore rooted at dir, creating the
// directory if needed.
func NewLocalFileStore(dir string) (*LocalFileStore, error) {
	if dir == "" {
		return nil, errors.New("backup directory cannot be empty")
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	return &LocalFileStore{dir: dir}, nil
}

// Path returns the artifact path for the given backup ID.
func (s *LocalFileStore) Path(backupID string) string {
	return filepath.Join(s.dir, backupID+".json")
}

// Write implements FileStore.Write.
func (s *LocalFileStore) Write(backupID string, data []byte) (string, error) {
	path := s.Path(backupID)

	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("failed to write backup file: %w", err)
	}

	return path, nil
}

// Read implements FileStore.Read.
func (s *LocalFileStore) Read(backupID string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(backupID))
	if err != nil {
		return nil, fmt.Errorf("failed to read backup file: %w", err)
	}

	return data, nil
}

// Remove implements FileStore.Remove.
func (s *LocalFileStore) Remove(backupID string) error {
	err := os.Remove(s.Path(backupID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove backup file: %w", err)
	}

	return nil
}
