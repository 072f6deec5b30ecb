package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/lotuscare/facility-directory/internal/models"
)

// DirectoryStore defines the interface for provider directory storage.
// This allows different storage backends to be used interchangeably.
type DirectoryStore interface {
	// Initialize sets up any necessary structures or connections. It
	// blocks until the store is ready to serve, replacing any fixed
	// startup delay a caller might otherwise need.
	Initialize(ctx context.Context) error

	// AddProvider stores a new provider record
	AddProvider(ctx context.Context, provider *models.Provider) error

	// GetProvider retrieves a provider by ID
	GetProvider(ctx context.Context, id uuid.UUID) (*models.Provider, error)

	// ListProviders retrieves all provider records
	ListProviders(ctx context.Context) ([]*models.Provider, error)

	// FindProviderByAdminEmail returns the provider owned by the given
	// account email, or ErrProviderNotFound. Absence is a normal outcome.
	FindProviderByAdminEmail(ctx context.Context, email string) (*models.Provider, error)

	// UpdateProvider replaces an existing provider record
	UpdateProvider(ctx context.Context, id uuid.UUID, updated *models.Provider) error

	// DeleteProvider removes a provider record
	DeleteProvider(ctx context.Context, id uuid.UUID) error

	// UpdateBedCounts atomically sets beds_available, total_beds,
	// last_bed_update, and updated_at in a single write. The timestamps
	// are assigned by the store, never by the caller.
	UpdateBedCounts(ctx context.Context, id uuid.UUID, available, total int) error

	// Subscribe opens a change feed over the full provider collection.
	// The subscription delivers one initial snapshot immediately and a
	// full replacement snapshot after every add/update/remove.
	Subscribe(ctx context.Context) (*Subscription, error)

	// Close cleans up any resources used by the store
	Close() error
}

// Subscription is the cancellation token returned by Subscribe. Holders
// read full roster snapshots from Snapshots and must call Cancel before
// opening a replacement subscription so update streams never overlap.
type Subscription struct {
	mu        sync.Mutex
	snapshots chan []*models.Provider
	stop      func()
	closed    bool
	once      sync.Once
}

func newSubscription(stop func()) *Subscription {
	return &Subscription{
		// Buffered one deep; publish replaces any undelivered snapshot
		// so a slow reader always sees the latest state, never a stale
		// backlog.
		snapshots: make(chan []*models.Provider, 1),
		stop:      stop,
	}
}

// Snapshots returns the stream of full roster snapshots. The channel is
// closed when the subscription is cancelled.
func (s *Subscription) Snapshots() <-chan []*models.Provider {
	return s.snapshots
}

// Cancel detaches the subscription from its source and closes the
// snapshot channel. It is idempotent and safe to call concurrently with
// incoming snapshots.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.stop()
		s.mu.Lock()
		s.closed = true
		close(s.snapshots)
		s.mu.Unlock()
	})
}

// publish delivers a snapshot with latest-wins semantics. Snapshots
// arriving after cancellation are dropped.
func (s *Subscription) publish(snapshot []*models.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.snapshots <- snapshot:
	default:
		// Drop the undelivered older snapshot in favor of this one.
		select {
		case <-s.snapshots:
		default:
		}
		s.snapshots <- snapshot
	}
}
