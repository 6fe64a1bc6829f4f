package persist

import "sync"

// MemoryStore keeps sets in memory. History recorded against it lasts for
// the process only.
type MemoryStore struct {
	mu   sync.Mutex
	sets map[string][]string
	// FailPut, when set, is returned by PutStringSet.
	FailPut error
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[string][]string)}
}

// GetStringSet returns a copy of the set under key.
func (s *MemoryStore) GetStringSet(key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sets[key]...), nil
}

// PutStringSet replaces the set under key.
func (s *MemoryStore) PutStringSet(key string, values []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPut != nil {
		return s.FailPut
	}
	if len(values) == 0 {
		delete(s.sets, key)
		return nil
	}
	s.sets[key] = dedupe(values)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
