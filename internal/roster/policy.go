package roster

import (
	"sort"

	"github.com/lotuscare/facility-directory/internal/models"
)

// CategoryAll is the filter value that passes every record through.
const CategoryAll = "All"

// FilterByType returns the records matching the given category. "All"
// preserves the snapshot membership unchanged; any other category keeps
// only records with exactly that service type. Pure: the input snapshot
// is never mutated.
func FilterByType(snapshot []*models.Provider, category string) []*models.Provider {
	if category == CategoryAll {
		filtered := make([]*models.Provider, len(snapshot))
		copy(filtered, snapshot)
		return filtered
	}

	var filtered []*models.Provider
	for _, p := range snapshot {
		if string(p.ServiceType) == category {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// SortForCategory orders a filtered view for display. The skilled-nursing
// category sorts descending by available beds (missing counts as 0) with
// ties keeping their relative arrival order; every other category keeps
// arrival order untouched.
func SortForCategory(view []*models.Provider, category string) []*models.Provider {
	ordered := make([]*models.Provider, len(view))
	copy(ordered, view)

	if category == string(models.ServiceSkilledNursing) {
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].BedsAvailable > ordered[j].BedsAvailable
		})
	}
	return ordered
}

// BedAggregate holds the stats banner numbers for the skilled-nursing
// population.
type BedAggregate struct {
	BedsAvailable int `json:"beds_available"`
	Facilities    int `json:"facilities"`
	TotalBeds     int `json:"total_beds"`
}

// Aggregate computes the banner numbers over skilled-nursing records only,
// regardless of the active filter: the banner always reflects the whole
// skilled-nursing population, not the currently displayed subset.
func Aggregate(snapshot []*models.Provider) BedAggregate {
	var agg BedAggregate
	for _, p := range snapshot {
		if !p.IsSkilledNursing() {
			continue
		}
		agg.Facilities++
		agg.BedsAvailable += p.BedsAvailable
		agg.TotalBeds += p.TotalBeds
	}
	return agg
}
