package view

import (
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSessions bounds the number of live viewer sessions.
const DefaultSessions = 1024

// Sessions keeps controllers by session id. The least recently used
// session is dropped when the store is full.
type Sessions struct {
	cache *lru.Cache[string, *Controller]
}

// NewSessions creates a store of size entries. onEvict, if set, is called
// with each evicted session id.
func NewSessions(size int, onEvict func(id string)) (*Sessions, error) {
	if size <= 0 {
		size = DefaultSessions
	}
	cache, err := lru.NewWithEvict(size, func(id string, _ *Controller) {
		if onEvict != nil {
			onEvict(id)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("creating session store: %w", err)
	}
	return &Sessions{cache: cache}, nil
}

// Create stores c under a new random id.
func (s *Sessions) Create(c *Controller) string {
	id := uuid.NewString()
	s.cache.Add(id, c)
	return id
}

// Get returns the controller of id.
func (s *Sessions) Get(id string) (*Controller, bool) {
	if id == "" {
		return nil, false
	}
	return s.cache.Get(id)
}

// Ensure returns the controller of id, creating it with mk when id is
// unknown or malformed. The returned id is the one the controller is
// stored under.
func (s *Sessions) Ensure(id string, mk func() *Controller) (string, *Controller) {
	if c, ok := s.Get(id); ok {
		return id, c
	}
	if _, err := uuid.Parse(id); err != nil {
		c := mk()
		return s.Create(c), c
	}
	c := mk()
	if prev, ok, _ := s.cache.PeekOrAdd(id, c); ok {
		return id, prev
	}
	return id, c
}

// Len is the number of stored sessions.
func (s *Sessions) Len() int { return s.cache.Len() }

// Purge drops all sessions.
func (s *Sessions) Purge() { s.cache.Purge() }
