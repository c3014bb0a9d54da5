package identity

import "sync"

// MemoryStore is an in-memory identity store for tests.
type MemoryStore struct {
	mu sync.Mutex
	id *DeviceIdentity
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored identity, or (nil, nil) if none was saved.
func (s *MemoryStore) Load() (*DeviceIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id == nil {
		return nil, nil
	}
	cp := *s.id
	return &cp, nil
}

// Save stores a copy of the identity.
func (s *MemoryStore) Save(id *DeviceIdentity) error {
	if err := id.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *id
	s.id = &cp
	return nil
}

// Clear drops the stored identity.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.id = nil
	return nil
}

// Compile-time interface satisfaction check.
var _ Store = (*MemoryStore)(nil)
