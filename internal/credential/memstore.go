package credential

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory [Store] for tests and single-node development
// deployments. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[memKey]string
}

type memKey struct {
	callerID      string
	integrationID string
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty, ready-to-use [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[memKey]string)}
}

// Get implements [Store].
func (s *MemoryStore) Get(_ context.Context, callerID, integrationID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secrets[memKey{callerID, integrationID}], nil
}

// Set implements [Store].
func (s *MemoryStore) Set(_ context.Context, callerID, integrationID, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[memKey{callerID, integrationID}] = secret
	return nil
}

// Delete implements [Store].
func (s *MemoryStore) Delete(_ context.Context, callerID, integrationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, memKey{callerID, integrationID})
	return nil
}
