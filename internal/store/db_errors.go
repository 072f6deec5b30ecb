package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lotuscare/facility-directory/internal/models"
)

// Postgres error codes the store cares about.
const (
	pgUniqueViolation     = "23505" // unique_violation
	pgConnectionException = "08000" // connection_exception
	pgConnectionFailure   = "08006" // connection_failure
)

// classifyDBError maps low-level database errors onto the store's error
// taxonomy so callers can branch on sentinel errors instead of driver types.
func classifyDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrProviderNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrStoreUnavailable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return models.ErrProviderAlreadyExists
		case pgConnectionException, pgConnectionFailure:
			return models.ErrStoreUnavailable
		}
		if len(pgErr.Code) >= 2 {
			// Connection (08), system (53), and operator intervention
			// (57) classes all mean the store cannot be reached right now.
			switch pgErr.Code[:2] {
			case "08", "53", "57":
				return models.ErrStoreUnavailable
			}
		}
	}
	return err
}
