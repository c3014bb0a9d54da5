package identity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RecordVersion is the current version of the identity file format.
const RecordVersion = 1

// fileRecord is the on-disk envelope around a DeviceIdentity.
type fileRecord struct {
	Version  int             `json:"version"`
	SavedAt  time.Time       `json:"saved_at"`
	Identity *DeviceIdentity `json:"identity"`
}

// FileStore persists the identity to a JSON file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed identity store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save persists the identity to disk.
func (s *FileStore) Save(id *DeviceIdentity) error {
	if err := id.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Ensure parent directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	rec := fileRecord{
		Version:  RecordVersion,
		SavedAt:  time.Now(),
		Identity: id,
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0644)
}

// Load reads the identity from disk.
// Returns nil, nil if the file doesn't exist (unprovisioned cart).
func (s *FileStore) Load() (*DeviceIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec := fileRecord{}
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}

	return rec.Identity, nil
}

// Clear removes the identity file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Compile-time interface satisfaction check.
var _ Store = (*FileStore)(nil)
