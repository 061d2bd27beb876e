package tasks

import (
	"context"
	"sync"
)

// InMemoryStore keeps the encoded list in process memory. Nothing survives a
// restart; it is the fallback when no durable backend is configured and the
// double used by tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	key    string
	values map[string][]byte
	saves  int
}

func NewInMemoryStore(key string) *InMemoryStore {
	if key == "" {
		key = DefaultStorageKey
	}
	return &InMemoryStore{key: key, values: make(map[string][]byte)}
}

func (s *InMemoryStore) Save(_ context.Context, list []Task) error {
	data, err := Encode(list)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[s.key] = data
	s.saves++
	return nil
}

func (s *InMemoryStore) Load(_ context.Context) ([]Task, error) {
	s.mu.RLock()
	data, ok := s.values[s.key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNoData
	}
	return Decode(data)
}

// Raw returns the stored bytes, nil if nothing was saved.
func (s *InMemoryStore) Raw() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data := s.values[s.key]
	if data == nil {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

func (s *InMemoryStore) SaveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func (s *InMemoryStore) Name() string { return "memory" }

func (s *InMemoryStore) Close() error { return nil }
