package storage

import "sync"

type memoryStorage struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStorage() Storage {
	return &memoryStorage{
		blobs: make(map[string][]byte),
	}
}

func (s *memoryStorage) Load(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.blobs[key]
	if !ok {
		return nil, false, nil
	}
	// копия, чтобы вызывающий не мог изменить хранимые данные
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (s *memoryStorage) Save(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.blobs[key] = stored
	return nil
}

func (s *memoryStorage) Close() error {
	return nil
}
