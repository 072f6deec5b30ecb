package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/lotuscare/facility-directory/internal/models"
	"github.com/lotuscare/facility-directory/internal/retryer"
)

// PostgresDirectoryStore implements DirectoryStore using PostgreSQL for
// record storage and a NATS change feed for cross-instance subscriptions.
type PostgresDirectoryStore struct {
	db     *pgxpool.Pool
	feed   *ChangeFeed
	logger *zap.Logger
	retry  retryer.Config
}

// NewPostgresDirectoryStore creates a new PostgresDirectoryStore. It
// expects a connected pgxpool.Pool and a connected change feed.
func NewPostgresDirectoryStore(db *pgxpool.Pool, feed *ChangeFeed, logger *zap.Logger) *PostgresDirectoryStore {
	return &PostgresDirectoryStore{
		db:     db,
		feed:   feed,
		logger: logger,
		retry:  retryer.DefaultConfig(),
	}
}

const providerColumns = `id, name, service_type, location, description, contact, email, website,
	admin_email, beds_available, total_beds, last_bed_update, lotus_rating, registered_at, updated_at`

// Initialize pings the database and creates the providers table if it does
// not already exist. It returns only once the store is ready to serve, so
// callers never need a startup delay.
func (ps *PostgresDirectoryStore) Initialize(ctx context.Context) error {
	if err := ps.db.Ping(ctx); err != nil {
		ps.logger.Error("Database ping failed during initialization", zap.Error(err))
		return fmt.Errorf("pinging database: %w", models.ErrStoreUnavailable)
	}

	createProvidersTableSQL := `
	CREATE TABLE IF NOT EXISTS providers (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		service_type VARCHAR(100) NOT NULL,
		location VARCHAR(255),
		description TEXT,
		contact VARCHAR(255),
		email VARCHAR(255),
		website VARCHAR(255),
		admin_email VARCHAR(255),
		beds_available INTEGER NOT NULL DEFAULT 0,
		total_beds INTEGER NOT NULL DEFAULT 0,
		last_bed_update TIMESTAMPTZ,
		lotus_rating JSONB,
		registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`
	if _, err := ps.db.Exec(ctx, createProvidersTableSQL); err != nil {
		ps.logger.Error("Failed to create 'providers' table", zap.Error(err))
		return fmt.Errorf("initializing providers table: %w", err)
	}

	createIndexesSQL := `
	CREATE INDEX IF NOT EXISTS idx_providers_service_type ON providers (service_type);
	CREATE INDEX IF NOT EXISTS idx_providers_admin_email ON providers (admin_email);
	CREATE INDEX IF NOT EXISTS idx_providers_registered_at ON providers (registered_at);
	`
	if _, err := ps.db.Exec(ctx, createIndexesSQL); err != nil {
		ps.logger.Error("Failed to create indexes for 'providers' table", zap.Error(err))
		return fmt.Errorf("creating indexes: %w", err)
	}

	ps.logger.Info("PostgreSQL schema for facility directory initialized")
	return nil
}

// AddProvider inserts a new provider record.
func (ps *PostgresDirectoryStore) AddProvider(ctx context.Context, provider *models.Provider) error {
	ratingJSON, err := marshalRating(provider.Rating)
	if err != nil {
		return err
	}

	insertSQL := `
	INSERT INTO providers (` + providerColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	err = retryer.WithRetry(ctx, ps.logger, ps.retry, "AddProvider", func() error {
		_, execErr := ps.db.Exec(ctx, insertSQL,
			provider.ID,
			provider.Name,
			provider.ServiceType,
			provider.Location,
			provider.Description,
			provider.Contact,
			provider.Email,
			provider.Website,
			provider.AdminEmail,
			provider.BedsAvailable,
			provider.TotalBeds,
			nullableTime(provider.LastBedUpdate),
			ratingJSON,
			provider.RegisteredAt,
			provider.UpdatedAt,
		)
		return execErr
	})
	if err != nil {
		ps.logger.Error("Failed to insert provider", zap.String("provider_id", provider.ID.String()), zap.Error(err))
		return classifyDBError(err)
	}

	ps.announce(ChangeEvent{ProviderID: provider.ID, Kind: ChangeAdded, At: time.Now().UTC()})
	return nil
}

// GetProvider retrieves a provider record by ID.
func (ps *PostgresDirectoryStore) GetProvider(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	getSQL := `SELECT ` + providerColumns + ` FROM providers WHERE id = $1`

	provider, err := ps.scanProvider(ps.db.QueryRow(ctx, getSQL, id))
	if err != nil {
		classified := classifyDBError(err)
		if classified == models.ErrProviderNotFound {
			ps.logger.Debug("Provider not found", zap.String("provider_id", id.String()))
			return nil, classified
		}
		ps.logger.Error("Failed to get provider", zap.String("provider_id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("getting provider %s: %w", id.String(), classified)
	}
	return provider, nil
}

// ListProviders retrieves all provider records in arrival order.
func (ps *PostgresDirectoryStore) ListProviders(ctx context.Context) ([]*models.Provider, error) {
	listSQL := `SELECT ` + providerColumns + ` FROM providers ORDER BY registered_at, id`

	rows, err := ps.db.Query(ctx, listSQL)
	if err != nil {
		ps.logger.Error("Failed to list providers", zap.Error(err))
		return nil, fmt.Errorf("listing providers: %w", classifyDBError(err))
	}
	defer rows.Close()

	var providers []*models.Provider
	for rows.Next() {
		provider, scanErr := ps.scanProvider(rows)
		if scanErr != nil {
			ps.logger.Error("Failed to scan provider row", zap.Error(scanErr))
			return nil, fmt.Errorf("scanning provider row: %w", scanErr)
		}
		providers = append(providers, provider)
	}
	if err := rows.Err(); err != nil {
		ps.logger.Error("Error iterating provider rows", zap.Error(err))
		return nil, fmt.Errorf("iterating provider rows: %w", classifyDBError(err))
	}
	return providers, nil
}

// FindProviderByAdminEmail returns the record owned by the given account
// email. Not finding one is a normal outcome, reported as
// models.ErrProviderNotFound.
func (ps *PostgresDirectoryStore) FindProviderByAdminEmail(ctx context.Context, email string) (*models.Provider, error) {
	findSQL := `SELECT ` + providerColumns + ` FROM providers WHERE LOWER(admin_email) = LOWER($1) LIMIT 1`

	provider, err := ps.scanProvider(ps.db.QueryRow(ctx, findSQL, email))
	if err != nil {
		classified := classifyDBError(err)
		if classified == models.ErrProviderNotFound {
			return nil, classified
		}
		ps.logger.Error("Failed to look up provider by admin email", zap.Error(err))
		return nil, fmt.Errorf("finding provider by admin email: %w", classified)
	}
	return provider, nil
}

// UpdateProvider replaces an existing provider record.
func (ps *PostgresDirectoryStore) UpdateProvider(ctx context.Context, id uuid.UUID, updated *models.Provider) error {
	ratingJSON, err := marshalRating(updated.Rating)
	if err != nil {
		return err
	}

	updateSQL := `
	UPDATE providers
	SET name = $1, service_type = $2, location = $3, description = $4, contact = $5,
	    email = $6, website = $7, admin_email = $8, lotus_rating = $9, updated_at = NOW()
	WHERE id = $10
	`
	var rowsAffected int64
	err = retryer.WithRetry(ctx, ps.logger, ps.retry, "UpdateProvider", func() error {
		cmdTag, execErr := ps.db.Exec(ctx, updateSQL,
			updated.Name,
			updated.ServiceType,
			updated.Location,
			updated.Description,
			updated.Contact,
			updated.Email,
			updated.Website,
			updated.AdminEmail,
			ratingJSON,
			id,
		)
		if execErr != nil {
			return execErr
		}
		rowsAffected = cmdTag.RowsAffected()
		return nil
	})
	if err != nil {
		ps.logger.Error("Failed to update provider", zap.String("provider_id", id.String()), zap.Error(err))
		return classifyDBError(err)
	}
	if rowsAffected == 0 {
		return models.ErrProviderNotFound
	}

	ps.announce(ChangeEvent{ProviderID: id, Kind: ChangeUpdated, At: time.Now().UTC()})
	return nil
}

// DeleteProvider removes a provider record.
func (ps *PostgresDirectoryStore) DeleteProvider(ctx context.Context, id uuid.UUID) error {
	deleteSQL := `DELETE FROM providers WHERE id = $1`
	cmdTag, err := ps.db.Exec(ctx, deleteSQL, id)
	if err != nil {
		ps.logger.Error("Failed to delete provider", zap.String("provider_id", id.String()), zap.Error(err))
		return classifyDBError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrProviderNotFound
	}

	ps.announce(ChangeEvent{ProviderID: id, Kind: ChangeRemoved, At: time.Now().UTC()})
	return nil
}

// UpdateBedCounts sets the bed fields and both timestamps in one UPDATE.
// The timestamps come from the database server, and the single statement
// guarantees no reader observes beds_available without the matching
// total_beds.
func (ps *PostgresDirectoryStore) UpdateBedCounts(ctx context.Context, id uuid.UUID, available, total int) error {
	updateSQL := `
	UPDATE providers
	SET beds_available = $1, total_beds = $2, last_bed_update = NOW(), updated_at = NOW()
	WHERE id = $3
	`
	var rowsAffected int64
	err := retryer.WithRetry(ctx, ps.logger, ps.retry, "UpdateBedCounts", func() error {
		cmdTag, execErr := ps.db.Exec(ctx, updateSQL, available, total, id)
		if execErr != nil {
			return execErr
		}
		rowsAffected = cmdTag.RowsAffected()
		return nil
	})
	if err != nil {
		ps.logger.Error("Failed to update bed counts", zap.String("provider_id", id.String()), zap.Error(err))
		return classifyDBError(err)
	}
	if rowsAffected == 0 {
		return models.ErrProviderNotFound
	}

	ps.logger.Info("Bed counts updated",
		zap.String("provider_id", id.String()),
		zap.Int("beds_available", available),
		zap.Int("total_beds", total),
	)
	ps.announce(ChangeEvent{ProviderID: id, Kind: ChangeBedCounts, At: time.Now().UTC()})
	return nil
}

// Subscribe opens a change-feed subscription. Every announced write
// triggers a full re-read of the collection, so subscribers always receive
// complete replacement snapshots in the order the feed emits events.
func (ps *PostgresDirectoryStore) Subscribe(ctx context.Context) (*Subscription, error) {
	var listener *nats.Subscription

	sub := newSubscription(func() {
		if listener != nil {
			if err := listener.Unsubscribe(); err != nil {
				ps.logger.Warn("Failed to unsubscribe from change feed", zap.Error(err))
			}
		}
	})

	listener, err := ps.feed.Listen(func(event ChangeEvent) {
		snapshot, listErr := ps.ListProviders(context.Background())
		if listErr != nil {
			ps.logger.Error("Failed to re-read providers after change event",
				zap.String("provider_id", event.ProviderID.String()),
				zap.Error(listErr),
			)
			return
		}
		sub.publish(snapshot)
	})
	if err != nil {
		return nil, fmt.Errorf("opening change feed subscription: %w", models.ErrStoreUnavailable)
	}

	initial, err := ps.ListProviders(ctx)
	if err != nil {
		sub.Cancel()
		return nil, err
	}
	sub.publish(initial)
	return sub, nil
}

// Close is a no-op; the pool and change feed are managed by the caller.
func (ps *PostgresDirectoryStore) Close() error {
	return nil
}

// announce publishes a change event. Announce failures are logged, not
// returned: the write itself committed, and the feed reconnects on its own.
func (ps *PostgresDirectoryStore) announce(event ChangeEvent) {
	if ps.feed == nil {
		return
	}
	if err := ps.feed.Announce(event); err != nil {
		ps.logger.Error("Failed to announce directory change",
			zap.String("provider_id", event.ProviderID.String()),
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
	}
}

// scanProvider reads one provider row. pgx.Row and pgx.Rows share Scan.
func (ps *PostgresDirectoryStore) scanProvider(row pgx.Row) (*models.Provider, error) {
	provider := &models.Provider{}
	var lastBedUpdate *time.Time
	var ratingBytes []byte

	err := row.Scan(
		&provider.ID,
		&provider.Name,
		&provider.ServiceType,
		&provider.Location,
		&provider.Description,
		&provider.Contact,
		&provider.Email,
		&provider.Website,
		&provider.AdminEmail,
		&provider.BedsAvailable,
		&provider.TotalBeds,
		&lastBedUpdate,
		&ratingBytes,
		&provider.RegisteredAt,
		&provider.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastBedUpdate != nil {
		provider.LastBedUpdate = *lastBedUpdate
	}
	if len(ratingBytes) > 0 && string(ratingBytes) != "null" {
		rating := &models.LotusRating{}
		if err := json.Unmarshal(ratingBytes, rating); err != nil {
			ps.logger.Warn("Failed to unmarshal lotus rating",
				zap.String("provider_id", provider.ID.String()),
				zap.Error(err),
			)
		} else {
			provider.Rating = rating
		}
	}
	return provider, nil
}

func marshalRating(rating *models.LotusRating) ([]byte, error) {
	if rating == nil {
		return nil, nil
	}
	data, err := json.Marshal(rating)
	if err != nil {
		return nil, fmt.Errorf("marshalling lotus rating: %w", err)
	}
	return data, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
