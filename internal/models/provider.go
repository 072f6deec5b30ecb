package models

import (
	"time"

	"github.com/google/uuid"
)

// ServiceType categorizes what kind of care a facility provides.
// Bed availability only applies to skilled nursing facilities.
type ServiceType string

const (
	ServiceSkilledNursing ServiceType = "Skilled Nursing"
	ServicePalliativeCare ServiceType = "Palliative Care"
	ServiceBoardAndCare   ServiceType = "Board and Care Facilities"
	ServiceMemoryCare     ServiceType = "Memory Care"
)

// LotusRating holds the four quality flags shown on a provider card.
type LotusRating struct {
	Compassionate bool `json:"compassionate" yaml:"compassionate"`
	Responsive    bool `json:"responsive" yaml:"responsive"`
	Supportive    bool `json:"supportive" yaml:"supportive"`
	Professional  bool `json:"professional" yaml:"professional"`
}

// Provider represents a facility record in the directory.
// This struct is used for API requests/responses and internal representation;
// for database storage it maps to the providers table.
type Provider struct {
	ID          uuid.UUID   `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	ServiceType ServiceType `json:"service_type" yaml:"service_type"`
	Location    string      `json:"location,omitempty" yaml:"location,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Contact     string      `json:"contact,omitempty" yaml:"contact,omitempty"`
	Email       string      `json:"email,omitempty" yaml:"email,omitempty"`
	Website     string      `json:"website,omitempty" yaml:"website,omitempty"`

	// AdminEmail identifies the account that owns this record and may
	// edit its bed counts.
	AdminEmail string `json:"admin_email,omitempty" yaml:"admin_email,omitempty"`

	// Bed fields are meaningful only when ServiceType is Skilled Nursing.
	BedsAvailable int `json:"beds_available" yaml:"beds_available"`
	TotalBeds     int `json:"total_beds" yaml:"total_beds"`

	// LastBedUpdate is set by the store on every accepted bed-count write.
	// Zero means the counts have never been updated.
	LastBedUpdate time.Time `json:"last_bed_update,omitempty" yaml:"last_bed_update,omitempty"`

	Rating *LotusRating `json:"lotus_rating,omitempty" yaml:"lotus_rating,omitempty"`

	RegisteredAt time.Time `json:"registered_at" yaml:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// NewProvider creates a new Provider instance with a generated ID and timestamps.
func NewProvider(name string, serviceType ServiceType, location, description, adminEmail string) *Provider {
	now := time.Now().UTC()
	return &Provider{
		ID:           uuid.New(),
		Name:         name,
		ServiceType:  serviceType,
		Location:     location,
		Description:  description,
		AdminEmail:   adminEmail,
		RegisteredAt: now,
		UpdatedAt:    now,
	}
}

// IsSkilledNursing reports whether bed fields apply to this record.
func (p *Provider) IsSkilledNursing() bool {
	return p.ServiceType == ServiceSkilledNursing
}

// HasBedData reports whether the record carries a displayable bed count.
func (p *Provider) HasBedData() bool {
	return p.IsSkilledNursing() && p.TotalBeds > 0
}

// LowAvailability reports whether available beds have dropped below 10%
// of capacity. Display emphasis only, not an error state.
func (p *Provider) LowAvailability() bool {
	return float64(p.BedsAvailable) < float64(p.TotalBeds)*0.1
}

// SetBedCounts applies an accepted bed-count write to the record and
// stamps both update timestamps.
func (p *Provider) SetBedCounts(available, total int, now time.Time) {
	p.BedsAvailable = available
	p.TotalBeds = total
	p.LastBedUpdate = now
	p.UpdatedAt = now
}
