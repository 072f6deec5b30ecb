package auth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/lotuscare/facility-directory/internal/models"
	"github.com/lotuscare/facility-directory/internal/store"
)

// Resolver computes the session capability from an authenticated identity.
// It is a read-only lookup against the directory store.
type Resolver struct {
	store  store.DirectoryStore
	logger *zap.Logger
}

// NewResolver creates a capability resolver backed by the directory store.
func NewResolver(directoryStore store.DirectoryStore, logger *zap.Logger) *Resolver {
	return &Resolver{store: directoryStore, logger: logger}
}

// Resolve looks up whether any provider record is owned by the given
// identity and returns the matching edit capability. Absence is a normal
// outcome, not an error. If the lookup channel is unavailable the resolver
// fails closed: it logs the cause and returns no capability, so browsing
// still works and roster initialization never crashes on an auth failure.
func (r *Resolver) Resolve(ctx context.Context, identity string) Capability {
	if identity == "" {
		return NoCapability
	}

	provider, err := r.store.FindProviderByAdminEmail(ctx, identity)
	if err != nil {
		if errors.Is(err, models.ErrProviderNotFound) {
			return NoCapability
		}
		r.logger.Error("Capability lookup failed, resolving to no capability",
			zap.String("identity", identity),
			zap.Error(err),
		)
		return NoCapability
	}

	r.logger.Info("Identity resolved to provider edit capability",
		zap.String("identity", identity),
		zap.String("provider_id", provider.ID.String()),
	)
	return CanEditProvider(provider.ID)
}
