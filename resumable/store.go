package resumable

import "sync"

// Store maps upload fingerprints to their remote upload URLs.
type Store interface {
	Set(fingerprint, uploadURL string)
	Get(fingerprint string) (string, bool)
	Delete(fingerprint string)
}

// MemoryStore is a Store backed by an in-process map. Safe for concurrent
// use by multiple upload workers.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]string{}}
}

// Set records the upload URL for a fingerprint.
func (s *MemoryStore) Set(fingerprint, uploadURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[fingerprint] = uploadURL
}

// Get looks up the upload URL for a fingerprint.
func (s *MemoryStore) Get(fingerprint string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uploadURL, ok := s.entries[fingerprint]
	return uploadURL, ok
}

// Delete removes a fingerprint, typically once its upload completed.
func (s *MemoryStore) Delete(fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, fingerprint)
}
