package models

import "errors"

// Predefined errors for the directory store, resolver, and bed-count workflow.
var (
	ErrProviderNotFound      = errors.New("provider not found")
	ErrProviderAlreadyExists = errors.New("provider already exists with this ID")
	ErrInvalidProviderData   = errors.New("invalid provider data provided")

	// ErrStoreUnavailable is returned when the backing store cannot be
	// reached for a read, write, or subscription.
	ErrStoreUnavailable = errors.New("directory store unavailable")

	// Bed-count validation errors, checked in order by the update workflow.
	ErrUnauthorized           = errors.New("not authorized to edit this provider")
	ErrUnsupportedServiceType = errors.New("bed availability applies only to skilled nursing facilities")
	ErrNegativeValue          = errors.New("bed counts cannot be negative")
	ErrAvailableExceedsTotal  = errors.New("available beds cannot exceed total beds")

	// ErrUnimplemented marks stubbed features (reviews) so they surface a
	// clear signal instead of failing silently.
	ErrUnimplemented = errors.New("feature not yet available")
)

// IsValidationError reports whether err blocks a specific submit without
// being a store or infrastructure failure. Validation failures leave the
// editor draft open for correction.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrUnsupportedServiceType) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrAvailableExceedsTotal)
}
