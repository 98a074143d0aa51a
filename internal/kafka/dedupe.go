package kafka

import (
	"sync"
	"time"
)

// DedupeStore provides interface for message deduplication
type DedupeStore interface {
	Exists(messageID string) bool
	Add(messageID string) error
}

// InMemoryDedupeStore remembers processed message IDs for a TTL
type InMemoryDedupeStore struct {
	mu        sync.RWMutex
	store     map[string]time.Time
	ttl       time.Duration
	stop      chan struct{}
	closeOnce sync.Once
}

func NewInMemoryDedupeStore(ttl time.Duration) *InMemoryDedupeStore {
	store := &InMemoryDedupeStore{
		store: make(map[string]time.Time),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	go store.cleanup(time.Minute)
	return store
}

func (s *InMemoryDedupeStore) Exists(messageID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiry, exists := s.store[messageID]
	return exists && time.Now().Before(expiry)
}

func (s *InMemoryDedupeStore) Add(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[messageID] = time.Now().Add(s.ttl)
	return nil
}

// Close stops the cleanup goroutine
func (s *InMemoryDedupeStore) Close() {
	s.closeOnce.Do(func() { close(s.stop) })
}

func (s *InMemoryDedupeStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictExpired(time.Now())
		}
	}
}

func (s *InMemoryDedupeStore) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, expiry := range s.store {
		if now.After(expiry) {
			delete(s.store, id)
		}
	}
}

func (s *InMemoryDedupeStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.store)
}
