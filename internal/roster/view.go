package roster

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lotuscare/facility-directory/internal/auth"
	"github.com/lotuscare/facility-directory/internal/models"
)

// CardView is the renderable projection of one provider record. It is a
// pure data-to-view mapping decoupled from any UI toolkit; the rendering
// surface replaces its entire card list from the latest snapshot, never
// patching individual cards.
type CardView struct {
	ProviderID  uuid.UUID           `json:"provider_id"`
	Name        string              `json:"name"`
	Location    string              `json:"location"`
	ServiceType string              `json:"service_type"`
	ServiceIcon string              `json:"service_icon"`
	Description string              `json:"description"`
	Contact     string              `json:"contact,omitempty"`
	Email       string              `json:"email,omitempty"`
	Website     string              `json:"website,omitempty"`
	Rating      *models.LotusRating `json:"lotus_rating,omitempty"`

	ShowBeds        bool `json:"show_beds"`
	BedsAvailable   int  `json:"beds_available,omitempty"`
	TotalBeds       int  `json:"total_beds,omitempty"`
	LowAvailability bool `json:"low_availability,omitempty"`

	// CanEdit is true iff the viewing session holds the capability to
	// edit exactly this record.
	CanEdit bool `json:"can_edit"`

	// Visible is toggled by client-side search; hidden cards stay in the
	// rendered list so search never alters the underlying snapshot.
	Visible bool `json:"visible"`
}

// ServiceIcon maps a service type to its display icon.
func ServiceIcon(serviceType models.ServiceType) string {
	switch serviceType {
	case models.ServicePalliativeCare:
		return "❤️"
	case models.ServiceSkilledNursing:
		return "🏥"
	case models.ServiceBoardAndCare:
		return "🏠"
	case models.ServiceMemoryCare:
		return "🧠"
	default:
		return "🏥"
	}
}

// NewCardView maps one provider record to its renderable card.
func NewCardView(p *models.Provider, capability auth.Capability) CardView {
	name := p.Name
	if name == "" {
		name = "Provider Name"
	}
	location := p.Location
	if location == "" {
		location = "Location not specified"
	}
	description := p.Description
	if description == "" {
		description = "No description available"
	}

	return CardView{
		ProviderID:      p.ID,
		Name:            name,
		Location:        location,
		ServiceType:     string(p.ServiceType),
		ServiceIcon:     ServiceIcon(p.ServiceType),
		Description:     description,
		Contact:         p.Contact,
		Email:           p.Email,
		Website:         p.Website,
		Rating:          p.Rating,
		ShowBeds:        p.HasBedData(),
		BedsAvailable:   p.BedsAvailable,
		TotalBeds:       p.TotalBeds,
		LowAvailability: p.HasBedData() && p.LowAvailability(),
		CanEdit:         capability.AllowsEdit(p.ID),
		Visible:         true,
	}
}

// BuildCards maps an ordered view to its card list.
func BuildCards(view []*models.Provider, capability auth.Capability) []CardView {
	cards := make([]CardView, 0, len(view))
	for _, p := range view {
		cards = append(cards, NewCardView(p, capability))
	}
	return cards
}

// MatchesSearch reports whether a card stays visible for the given search
// term: case-insensitive substring over name, location, and description.
func (c CardView) MatchesSearch(term string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(c.Name), term) ||
		strings.Contains(strings.ToLower(c.Location), term) ||
		strings.Contains(strings.ToLower(c.Description), term)
}

// RosterView is the fully rendered state delivered to viewers: the card
// list for the active filter plus the skilled-nursing aggregate banner.
type RosterView struct {
	Category      string       `json:"category"`
	Cards         []CardView   `json:"cards"`
	Aggregate     BedAggregate `json:"aggregate"`
	ShowAggregate bool         `json:"show_aggregate"`
	RenderedAt    time.Time    `json:"rendered_at"`

	// Failed marks the distinguishable error state shown when the
	// subscription cannot reach the store. Browsing the rest of the
	// page is unaffected.
	Failed  bool   `json:"failed,omitempty"`
	Message string `json:"message,omitempty"`
}

// ForCapability returns a copy of the view with each card's edit
// affordance recomputed for the given session capability.
func (v RosterView) ForCapability(capability auth.Capability) RosterView {
	out := v
	out.Cards = make([]CardView, len(v.Cards))
	copy(out.Cards, v.Cards)
	for i := range out.Cards {
		out.Cards[i].CanEdit = capability.AllowsEdit(out.Cards[i].ProviderID)
	}
	return out
}
