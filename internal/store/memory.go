package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lotuscare/facility-directory/internal/models"
)

// InMemoryDirectoryStore is a simple in-memory store for provider records.
// It is thread-safe and fans out a full snapshot to every subscriber on
// each mutation, which makes it the reference behavior for the change feed.
type InMemoryDirectoryStore struct {
	mu          sync.RWMutex
	providers   map[uuid.UUID]*models.Provider
	order       []uuid.UUID // arrival order; map iteration is random
	subscribers map[uint64]*Subscription
	nextSubID   uint64
}

// NewInMemoryDirectoryStore creates a new in-memory directory store.
func NewInMemoryDirectoryStore() *InMemoryDirectoryStore {
	return &InMemoryDirectoryStore{
		providers:   make(map[uuid.UUID]*models.Provider),
		subscribers: make(map[uint64]*Subscription),
	}
}

// Initialize sets up the in-memory store. The map is created in the
// constructor, so the store is ready immediately.
func (s *InMemoryDirectoryStore) Initialize(ctx context.Context) error {
	return nil
}

// Close cancels all outstanding subscriptions.
func (s *InMemoryDirectoryStore) Close() error {
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	return nil
}

// AddProvider adds a new provider record to the store.
func (s *InMemoryDirectoryStore) AddProvider(ctx context.Context, provider *models.Provider) error {
	s.mu.Lock()
	if _, exists := s.providers[provider.ID]; exists {
		s.mu.Unlock()
		return models.ErrProviderAlreadyExists
	}
	s.providers[provider.ID] = provider
	s.order = append(s.order, provider.ID)
	s.mu.Unlock()

	s.notify()
	return nil
}

// GetProvider retrieves a provider by its ID.
func (s *InMemoryDirectoryStore) GetProvider(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	provider, exists := s.providers[id]
	if !exists {
		return nil, models.ErrProviderNotFound
	}
	return cloneProvider(provider), nil
}

// ListProviders returns all provider records in arrival order.
func (s *InMemoryDirectoryStore) ListProviders(ctx context.Context) ([]*models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(), nil
}

// FindProviderByAdminEmail returns the record whose admin email matches
// the given identity. Case-insensitive, as email addresses are.
func (s *InMemoryDirectoryStore) FindProviderByAdminEmail(ctx context.Context, email string) (*models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		p := s.providers[id]
		if p.AdminEmail != "" && strings.EqualFold(p.AdminEmail, email) {
			return cloneProvider(p), nil
		}
	}
	return nil, models.ErrProviderNotFound
}

// UpdateProvider replaces an existing provider record.
func (s *InMemoryDirectoryStore) UpdateProvider(ctx context.Context, id uuid.UUID, updated *models.Provider) error {
	s.mu.Lock()
	if _, exists := s.providers[id]; !exists {
		s.mu.Unlock()
		return models.ErrProviderNotFound
	}
	// The ID must not change during an update.
	updated.ID = id
	updated.UpdatedAt = time.Now().UTC()
	s.providers[id] = cloneProvider(updated)
	s.mu.Unlock()

	s.notify()
	return nil
}

// DeleteProvider removes a provider record from the store.
func (s *InMemoryDirectoryStore) DeleteProvider(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	if _, exists := s.providers[id]; !exists {
		s.mu.Unlock()
		return models.ErrProviderNotFound
	}
	delete(s.providers, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// UpdateBedCounts atomically sets the bed fields and both timestamps.
// A reader never observes beds_available updated without total_beds or
// vice versa: the whole update happens under the write lock.
func (s *InMemoryDirectoryStore) UpdateBedCounts(ctx context.Context, id uuid.UUID, available, total int) error {
	s.mu.Lock()
	provider, exists := s.providers[id]
	if !exists {
		s.mu.Unlock()
		return models.ErrProviderNotFound
	}
	provider.SetBedCounts(available, total, time.Now().UTC())
	s.mu.Unlock()

	s.notify()
	return nil
}

// Subscribe registers a new snapshot subscriber. The initial snapshot is
// delivered before Subscribe returns.
func (s *InMemoryDirectoryStore) Subscribe(ctx context.Context) (*Subscription, error) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++

	sub := newSubscription(func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	})
	s.subscribers[id] = sub
	initial := s.snapshotLocked()
	s.mu.Unlock()

	sub.publish(initial)
	return sub, nil
}

// notify fans the current snapshot out to every subscriber.
func (s *InMemoryDirectoryStore) notify() {
	s.mu.RLock()
	snapshot := s.snapshotLocked()
	subs := make([]*Subscription, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.publish(snapshot)
	}
}

// snapshotLocked builds a cloned, arrival-ordered snapshot. Callers must
// hold at least the read lock.
func (s *InMemoryDirectoryStore) snapshotLocked() []*models.Provider {
	snapshot := make([]*models.Provider, 0, len(s.order))
	for _, id := range s.order {
		snapshot = append(snapshot, cloneProvider(s.providers[id]))
	}
	return snapshot
}

// cloneProvider copies a record so subscribers and readers hold a
// read-only cached copy, never a pointer into store state.
func cloneProvider(p *models.Provider) *models.Provider {
	c := *p
	if p.Rating != nil {
		r := *p.Rating
		c.Rating = &r
	}
	return &c
}
