package cache

import (
	"bytes"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type memoryEntry struct {
	value    []byte
	inserted time.Time
}

// MemoryStore keeps entries in process memory under a byte budget
type MemoryStore struct {
	mu     sync.Mutex
	budget int64
	size   int64
	index  *simplelru.LRU[string, *memoryEntry]
}

// NewMemoryStore creates an in-memory store holding at most budget bytes of values
func NewMemoryStore(budget int64) (*MemoryStore, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("cache budget must be > 0 (got %d)", budget)
	}
	// Entry count is not the limit, bytes are; evictLocked enforces that.
	index, err := simplelru.NewLRU[string, *memoryEntry](math.MaxInt32, nil)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{budget: budget, index: index}, nil
}

func (s *MemoryStore) Get(k Keyer) ([]byte, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index.Get(k.Key())
	if !ok {
		return nil, time.Time{}, ErrNotCached
	}
	value := make([]byte, len(e.value))
	copy(value, e.value)
	return value, e.inserted, nil
}

func (s *MemoryStore) Put(k Keyer, v []byte) error {
	key := k.Key()
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.index.Get(key); ok {
		if bytes.Equal(old.value, v) {
			return nil
		}
		s.index.Remove(key)
		s.size -= int64(len(old.value))
	}
	if int64(len(v)) > s.budget {
		return nil
	}
	value := make([]byte, len(v))
	copy(value, v)
	s.index.Add(key, &memoryEntry{value: value, inserted: time.Now()})
	s.size += int64(len(value))
	s.evictLocked()
	return nil
}

func (s *MemoryStore) Remove(k Keyer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.index.Peek(k.Key()); ok {
		s.index.Remove(k.Key())
		s.size -= int64(len(e.value))
	}
}

func (s *MemoryStore) EvictIfNeeded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
}

func (s *MemoryStore) evictLocked() {
	for s.size > s.budget {
		_, e, ok := s.index.RemoveOldest()
		if !ok {
			return
		}
		s.size -= int64(len(e.value))
	}
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.Purge()
	s.size = 0
	return nil
}

func (s *MemoryStore) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Len()
}
