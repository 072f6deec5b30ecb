package auth

import "github.com/google/uuid"

// Capability is the ephemeral edit permission derived once per session.
// It is an immutable value: either no capability, or "may edit provider X".
// It is never persisted and never mutated; a new session resolves a new one.
type Capability struct {
	providerID uuid.UUID
	canEdit    bool
}

// NoCapability is the zero capability: browse only, no edit affordance.
var NoCapability = Capability{}

// CanEditProvider constructs the capability to edit exactly one provider.
func CanEditProvider(providerID uuid.UUID) Capability {
	return Capability{providerID: providerID, canEdit: true}
}

// AllowsEdit reports whether this capability authorizes editing the given
// provider record.
func (c Capability) AllowsEdit(providerID uuid.UUID) bool {
	return c.canEdit && c.providerID == providerID
}

// ProviderID returns the provider this capability covers and whether the
// capability grants any edit at all.
func (c Capability) ProviderID() (uuid.UUID, bool) {
	return c.providerID, c.canEdit
}
