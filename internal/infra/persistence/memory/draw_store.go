// Package memory provides an in-process draw page cache.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/coachpo/kino/internal/domain/drawstore"
	"github.com/coachpo/kino/internal/domain/kino"
)

// DrawStore keeps encoded envelopes in a map so entries go through the same
// decode and validation path as the persistent backends.
type DrawStore struct {
	mu      sync.RWMutex
	entries map[kino.PageKey][]byte
}

var _ drawstore.Store = (*DrawStore)(nil)

// NewDrawStore creates an empty memory-backed store.
func NewDrawStore() *DrawStore {
	return &DrawStore{entries: make(map[kino.PageKey][]byte)}
}

// Backend implements drawstore.Store.
func (s *DrawStore) Backend() string { return "memory" }

// Has implements drawstore.Store.
func (s *DrawStore) Has(ctx context.Context, key kino.PageKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("memory store has context: %w", err)
	}
	s.mu.RLock()
	_, ok := s.entries[key]
	s.mu.RUnlock()
	return ok, nil
}

// Load implements drawstore.Store.
func (s *DrawStore) Load(ctx context.Context, key kino.PageKey) (kino.Batch, error) {
	if err := ctx.Err(); err != nil {
		return kino.Batch{}, fmt.Errorf("memory store load context: %w", err)
	}
	s.mu.RLock()
	data, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return kino.Batch{}, drawstore.Miss("memory", key)
	}
	return drawstore.Decode(key, data)
}

// Store implements drawstore.Store.
func (s *DrawStore) Store(ctx context.Context, batch kino.Batch) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory store put context: %w", err)
	}
	data, err := drawstore.Encode(batch)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[batch.Key]; ok {
		current, err := drawstore.Decode(batch.Key, existing)
		if err != nil {
			return err
		}
		return drawstore.Reconcile(current, batch)
	}
	s.entries[batch.Key] = data
	return nil
}

// Len returns the number of cached pages.
func (s *DrawStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
