package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lotuscare/facility-directory/internal/models"
	"github.com/lotuscare/facility-directory/internal/store"
)

func TestResolveAnonymousIdentity(t *testing.T) {
	r := NewResolver(store.NewInMemoryDirectoryStore(), zap.NewNop())
	assert.Equal(t, NoCapability, r.Resolve(context.Background(), ""))
}

func TestResolveOwnerIdentity(t *testing.T) {
	s := store.NewInMemoryDirectoryStore()
	ctx := context.Background()

	p := models.NewProvider("Sunrise Manor", models.ServiceSkilledNursing, "", "", "Admin@Sunrise.test")
	require.NoError(t, s.AddProvider(ctx, p))

	r := NewResolver(s, zap.NewNop())
	capability := r.Resolve(ctx, "admin@sunrise.test")
	assert.True(t, capability.AllowsEdit(p.ID))
}

func TestResolveUnknownIdentity(t *testing.T) {
	s := store.NewInMemoryDirectoryStore()
	r := NewResolver(s, zap.NewNop())

	capability := r.Resolve(context.Background(), "nobody@example.com")
	assert.Equal(t, NoCapability, capability)
}

// unavailableStore simulates an unreachable lookup channel; the resolver
// must fail closed rather than error out.
type unavailableStore struct {
	*store.InMemoryDirectoryStore
}

func (s *unavailableStore) FindProviderByAdminEmail(ctx context.Context, email string) (*models.Provider, error) {
	return nil, models.ErrStoreUnavailable
}

func TestResolveFailsClosedOnStoreFailure(t *testing.T) {
	s := &unavailableStore{InMemoryDirectoryStore: store.NewInMemoryDirectoryStore()}
	r := NewResolver(s, zap.NewNop())

	capability := r.Resolve(context.Background(), "admin@sunrise.test")
	assert.Equal(t, NoCapability, capability)
}
