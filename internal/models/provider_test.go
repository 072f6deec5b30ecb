package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewProvider(t *testing.T) {
	p := NewProvider("Sunrise Manor", ServiceSkilledNursing, "Sacramento, CA", "24h care", "admin@sunrise.test")

	assert.NotEqual(t, [16]byte{}, [16]byte(p.ID))
	assert.Equal(t, "Sunrise Manor", p.Name)
	assert.Equal(t, ServiceSkilledNursing, p.ServiceType)
	assert.Equal(t, "admin@sunrise.test", p.AdminEmail)
	assert.False(t, p.RegisteredAt.IsZero())
	assert.True(t, p.LastBedUpdate.IsZero(), "counts never updated yet")
}

func TestHasBedData(t *testing.T) {
	p := NewProvider("x", ServiceSkilledNursing, "", "", "")
	assert.False(t, p.HasBedData(), "no total recorded yet")

	p.TotalBeds = 20
	assert.True(t, p.HasBedData())

	other := NewProvider("y", ServiceMemoryCare, "", "", "")
	other.TotalBeds = 20
	assert.False(t, other.HasBedData(), "beds apply to skilled nursing only")
}

func TestLowAvailabilityBoundary(t *testing.T) {
	p := NewProvider("x", ServiceSkilledNursing, "", "", "")
	p.TotalBeds = 21

	p.BedsAvailable = 2
	assert.True(t, p.LowAvailability())

	p.BedsAvailable = 3
	assert.False(t, p.LowAvailability())
}

func TestSetBedCounts(t *testing.T) {
	p := NewProvider("x", ServiceSkilledNursing, "", "", "")
	now := time.Now().UTC()

	p.SetBedCounts(3, 18, now)
	assert.Equal(t, 3, p.BedsAvailable)
	assert.Equal(t, 18, p.TotalBeds)
	assert.Equal(t, now, p.LastBedUpdate)
	assert.Equal(t, now, p.UpdatedAt)
}

func TestIsValidationError(t *testing.T) {
	for _, err := range []error{ErrUnauthorized, ErrUnsupportedServiceType, ErrNegativeValue, ErrAvailableExceedsTotal} {
		assert.True(t, IsValidationError(err), err.Error())
	}

	assert.False(t, IsValidationError(ErrProviderNotFound))
	assert.False(t, IsValidationError(ErrStoreUnavailable))
	assert.False(t, IsValidationError(errors.New("something else")))
	assert.False(t, IsValidationError(nil))
}
