package store

import (
	"context"
	"sync"
)

// MemoryStore holds the encoded slot in process memory. It goes through the
// same encode/decode path as the durable drivers.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreWithData starts from a raw slot value, damaged or not.
func NewMemoryStoreWithData(raw []byte) *MemoryStore {
	return &MemoryStore{data: append([]byte(nil), raw...)}
}

func (s *MemoryStore) Load(ctx context.Context) ([]Conversation, error) {
	s.mu.Lock()
	data := s.data
	s.mu.Unlock()
	if data == nil {
		return []Conversation{}, nil
	}
	return decodeOrEmpty(DriverMemory, data), nil
}

func (s *MemoryStore) Save(ctx context.Context, conversations []Conversation) error {
	data, err := Encode(conversations)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data = data
	s.saves++
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Raw returns a copy of the current slot value.
func (s *MemoryStore) Raw() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...)
}

// Saves reports how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
