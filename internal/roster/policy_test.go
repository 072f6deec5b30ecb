package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotuscare/facility-directory/internal/models"
)

func snf(name string, available, total int) *models.Provider {
	p := models.NewProvider(name, models.ServiceSkilledNursing, "", "", "")
	p.BedsAvailable = available
	p.TotalBeds = total
	return p
}

func TestFilterByTypeAllKeepsMembership(t *testing.T) {
	snapshot := []*models.Provider{
		snf("Alpha", 5, 20),
		models.NewProvider("Beta", models.ServiceMemoryCare, "", "", ""),
		models.NewProvider("Gamma", models.ServicePalliativeCare, "", "", ""),
	}

	filtered := FilterByType(snapshot, CategoryAll)
	require.Len(t, filtered, len(snapshot))
	for i := range snapshot {
		assert.Same(t, snapshot[i], filtered[i])
	}
}

func TestFilterByTypeExactMatch(t *testing.T) {
	snapshot := []*models.Provider{
		snf("Alpha", 5, 20),
		models.NewProvider("Beta", models.ServiceMemoryCare, "", "", ""),
		snf("Gamma", 3, 10),
	}

	filtered := FilterByType(snapshot, string(models.ServiceSkilledNursing))
	require.Len(t, filtered, 2)
	assert.Equal(t, "Alpha", filtered[0].Name)
	assert.Equal(t, "Gamma", filtered[1].Name)

	// The input snapshot is untouched.
	assert.Len(t, snapshot, 3)
}

func TestFilterByTypeUnknownCategoryIsEmpty(t *testing.T) {
	snapshot := []*models.Provider{snf("Alpha", 5, 20)}
	assert.Empty(t, FilterByType(snapshot, "Hospice"))
}

func TestSortForCategorySkilledNursingDescending(t *testing.T) {
	view := []*models.Provider{
		snf("Low", 2, 20),
		snf("High", 9, 20),
		snf("Mid", 5, 20),
	}

	ordered := SortForCategory(view, string(models.ServiceSkilledNursing))
	require.Len(t, ordered, 3)
	assert.Equal(t, "High", ordered[0].Name)
	assert.Equal(t, "Mid", ordered[1].Name)
	assert.Equal(t, "Low", ordered[2].Name)

	// Input order survives; sorting works on a copy.
	assert.Equal(t, "Low", view[0].Name)
}

func TestSortForCategoryTiesKeepArrivalOrder(t *testing.T) {
	view := []*models.Provider{
		snf("First", 4, 20),
		snf("Second", 4, 10),
		snf("Third", 4, 30),
	}

	ordered := SortForCategory(view, string(models.ServiceSkilledNursing))
	assert.Equal(t, "First", ordered[0].Name)
	assert.Equal(t, "Second", ordered[1].Name)
	assert.Equal(t, "Third", ordered[2].Name)
}

func TestSortForCategoryOtherCategoriesUntouched(t *testing.T) {
	view := []*models.Provider{
		models.NewProvider("Zeta", models.ServiceMemoryCare, "", "", ""),
		models.NewProvider("Alpha", models.ServiceMemoryCare, "", "", ""),
	}

	ordered := SortForCategory(view, string(models.ServiceMemoryCare))
	assert.Equal(t, "Zeta", ordered[0].Name)
	assert.Equal(t, "Alpha", ordered[1].Name)
}

func TestAggregateCoversSkilledNursingOnly(t *testing.T) {
	memory := models.NewProvider("Mem", models.ServiceMemoryCare, "", "", "")
	memory.BedsAvailable = 9
	memory.TotalBeds = 9

	snapshot := []*models.Provider{
		snf("A", 5, 20),
		snf("B", 3, 10),
		memory,
	}

	agg := Aggregate(snapshot)
	assert.Equal(t, 8, agg.BedsAvailable)
	assert.Equal(t, 2, agg.Facilities)
	assert.Equal(t, 30, agg.TotalBeds)
}

func TestAggregateEmptySnapshot(t *testing.T) {
	assert.Equal(t, BedAggregate{}, Aggregate(nil))
}
