package roster

import (
	"time"

	"github.com/google/uuid"
)

// EditorState tracks the bed-count editor's lifecycle:
// Closed -> Open(draft) -> {Closed on cancel, Submitting -> Closed on
// success, Open(draft) on failure}.
type EditorState int

const (
	EditorClosed EditorState = iota
	EditorOpen
	EditorSubmitting
)

func (s EditorState) String() string {
	switch s {
	case EditorOpen:
		return "open"
	case EditorSubmitting:
		return "submitting"
	default:
		return "closed"
	}
}

// Draft is the transient local state of an open edit form. It is discarded
// on cancel or successful submit and never partially persisted.
type Draft struct {
	ProviderID    uuid.UUID `json:"provider_id"`
	ProviderName  string    `json:"provider_name"`
	LastBedUpdate time.Time `json:"last_bed_update,omitempty"`
	BedsAvailable int       `json:"beds_available"`
	TotalBeds     int       `json:"total_beds"`
}

// BedPreview is the live occupancy preview shown while editing, computed
// from the draft alone; the store is untouched until explicit submit.
type BedPreview struct {
	Available       int     `json:"available"`
	Occupied        int     `json:"occupied"`
	OccupiedPercent float64 `json:"occupied_percent"`
}

// Adjust steps the draft's available count by delta, clamped to
// [0, TotalBeds].
func (d *Draft) Adjust(delta int) {
	next := d.BedsAvailable + delta
	if next < 0 {
		next = 0
	}
	if next > d.TotalBeds {
		next = d.TotalBeds
	}
	d.BedsAvailable = next
}

// Preview computes the occupancy numbers for the current draft values.
// A zero total renders as 0% occupied.
func (d *Draft) Preview() BedPreview {
	occupied := d.TotalBeds - d.BedsAvailable
	percent := 0.0
	if d.TotalBeds > 0 {
		percent = float64(occupied) / float64(d.TotalBeds) * 100
	}
	return BedPreview{
		Available:       d.BedsAvailable,
		Occupied:        occupied,
		OccupiedPercent: percent,
	}
}
