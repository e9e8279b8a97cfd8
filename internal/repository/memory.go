package repository

import (
	"context"
	"sync"

	"github.com/mmeshcher/storefront/internal/model"
)

var (
	_ model.KVStore   = (*MemoryStore)(nil)
	_ model.KVWatcher = (*MemoryStore)(nil)
)

// MemoryStore хранит значения в памяти процесса. Используется по умолчанию и в тестах.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string][]byte
	watchers map[int]func(key string)
	nextID   int
}

// NewMemoryStore создаёт пустое хранилище в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[string][]byte),
		watchers: make(map[int]func(key string)),
	}
}

// Get возвращает копию значения по ключу.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set сохраняет значение и уведомляет подписчиков.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.data[key] = append([]byte(nil), value...)
	s.mu.Unlock()

	s.notify(key)
	return nil
}

// Delete удаляет ключ и уведомляет подписчиков.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	_, existed := s.data[key]
	delete(s.data, key)
	s.mu.Unlock()

	if existed {
		s.notify(key)
	}
	return nil
}

// Watch регистрирует fn до отмены контекста.
func (s *MemoryStore) Watch(ctx context.Context, fn func(key string)) error {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	<-ctx.Done()

	s.mu.Lock()
	delete(s.watchers, id)
	s.mu.Unlock()
	return nil
}

// Close ничего не освобождает.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) notify(key string) {
	s.mu.RLock()
	fns := make([]func(string), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(key)
	}
}
