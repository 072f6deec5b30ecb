package roster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lotuscare/facility-directory/internal/auth"
	"github.com/lotuscare/facility-directory/internal/models"
	"github.com/lotuscare/facility-directory/internal/store"
)

func newTestController(t *testing.T) (*Controller, *store.InMemoryDirectoryStore) {
	t.Helper()
	st := store.NewInMemoryDirectoryStore()
	c := NewController(st, zap.NewNop())
	require.NoError(t, c.Initialize(context.Background()))
	t.Cleanup(c.Stop)
	return c, st
}

// eventuallyView polls the rendered view until match succeeds; snapshot
// delivery from the store is asynchronous.
func eventuallyView(t *testing.T, c *Controller, match func(RosterView) bool) RosterView {
	t.Helper()
	var view RosterView
	require.Eventually(t, func() bool {
		view = c.View(auth.NoCapability)
		return match(view)
	}, 2*time.Second, 5*time.Millisecond)
	return view
}

func TestControllerRendersSnapshotOnChange(t *testing.T) {
	c, st := newTestController(t)
	ctx := context.Background()

	require.NoError(t, st.AddProvider(ctx, snf("Sunrise Manor", 5, 20)))
	require.NoError(t, st.AddProvider(ctx, models.NewProvider("Quiet Oaks", models.ServiceMemoryCare, "", "", "")))

	view := eventuallyView(t, c, func(v RosterView) bool { return len(v.Cards) == 2 })
	assert.Equal(t, CategoryAll, view.Category)
	assert.Equal(t, "Sunrise Manor", view.Cards[0].Name)
	assert.Equal(t, "Quiet Oaks", view.Cards[1].Name)
	assert.False(t, view.ShowAggregate, "aggregate banner shows only under the skilled nursing filter")
	assert.Equal(t, BedAggregate{BedsAvailable: 5, Facilities: 1, TotalBeds: 20}, view.Aggregate)
}

func TestFilterByCategoryReplacesSubscription(t *testing.T) {
	c, st := newTestController(t)
	ctx := context.Background()

	require.NoError(t, st.AddProvider(ctx, snf("Alpha", 5, 20)))
	require.NoError(t, st.AddProvider(ctx, models.NewProvider("Beta", models.ServiceMemoryCare, "", "", "")))

	require.NoError(t, c.FilterByCategory(ctx, string(models.ServiceSkilledNursing)))
	view := eventuallyView(t, c, func(v RosterView) bool {
		return v.Category == string(models.ServiceSkilledNursing) && len(v.Cards) == 1
	})
	assert.Equal(t, "Alpha", view.Cards[0].Name)
	assert.True(t, view.ShowAggregate)

	// Rapid re-filtering leaves exactly the last subscription active:
	// a mutation after the churn renders under the final filter.
	require.NoError(t, c.FilterByCategory(ctx, string(models.ServiceMemoryCare)))
	require.NoError(t, c.FilterByCategory(ctx, CategoryAll))
	require.NoError(t, st.AddProvider(ctx, snf("Gamma", 1, 10)))

	view = eventuallyView(t, c, func(v RosterView) bool {
		return v.Category == CategoryAll && len(v.Cards) == 3
	})
	assert.Equal(t, "Gamma", view.Cards[2].Name)
}

func TestSkilledNursingFilterSortsByAvailability(t *testing.T) {
	c, st := newTestController(t)
	ctx := context.Background()

	require.NoError(t, st.AddProvider(ctx, snf("Low", 1, 20)))
	require.NoError(t, st.AddProvider(ctx, snf("High", 9, 20)))
	require.NoError(t, c.FilterByCategory(ctx, string(models.ServiceSkilledNursing)))

	view := eventuallyView(t, c, func(v RosterView) bool {
		return v.Category == string(models.ServiceSkilledNursing) && len(v.Cards) == 2
	})
	assert.Equal(t, "High", view.Cards[0].Name)
	assert.Equal(t, "Low", view.Cards[1].Name)
}

func TestBedUpdateEchoesThroughSubscription(t *testing.T) {
	c, st := newTestController(t)
	ctx := context.Background()

	provider := snf("Sunrise Manor", 5, 20)
	require.NoError(t, st.AddProvider(ctx, provider))
	eventuallyView(t, c, func(v RosterView) bool { return len(v.Cards) == 1 })

	capability := auth.CanEditProvider(provider.ID)
	require.NoError(t, c.SubmitBedCounts(ctx, capability, provider.ID, 3, 20))

	// The displayed counts update only when the write echoes back.
	view := eventuallyView(t, c, func(v RosterView) bool {
		return len(v.Cards) == 1 && v.Cards[0].BedsAvailable == 3
	})
	assert.Equal(t, 20, view.Cards[0].TotalBeds)

	stored, err := st.GetProvider(ctx, provider.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.BedsAvailable)
	assert.False(t, stored.LastBedUpdate.IsZero())
}

func TestOpenEditorRequiresCapability(t *testing.T) {
	c, st := newTestController(t)
	ctx := context.Background()

	provider := snf("Sunrise Manor", 5, 20)
	require.NoError(t, st.AddProvider(ctx, provider))

	_, err := c.OpenEditor(ctx, auth.NoCapability, provider.ID)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Equal(t, EditorClosed, c.EditorState())

	other := auth.CanEditProvider(snf("Other", 0, 0).ID)
	_, err = c.OpenEditor(ctx, other, provider.ID)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestOpenEditorRejectsNonSkilledNursing(t *testing.T) {
	c, st := newTestController(t)
	ctx := context.Background()

	provider := models.NewProvider("Quiet Oaks", models.ServiceMemoryCare, "", "", "")
	require.NoError(t, st.AddProvider(ctx, provider))

	_, err := c.OpenEditor(ctx, auth.CanEditProvider(provider.ID), provider.ID)
	assert.ErrorIs(t, err, models.ErrUnsupportedServiceType)
}

func TestOpenEditorPopulatesDraftFromStore(t *testing.T) {
	c, st := newTestController(t)
	ctx := context.Background()

	provider := snf("Sunrise Manor", 5, 20)
	require.NoError(t, st.AddProvider(ctx, provider))
	capability := auth.CanEditProvider(provider.ID)

	draft, err := c.OpenEditor(ctx, capability, provider.ID)
	require.NoError(t, err)
	assert.Equal(t, provider.ID, draft.ProviderID)
	assert.Equal(t, "Sunrise Manor", draft.ProviderName)
	assert.Equal(t, 5, draft.BedsAvailable)
	assert.Equal(t, 20, draft.TotalBeds)
	assert.Equal(t, EditorOpen, c.EditorState())

	// Re-opening discards local edits and repopulates from the store.
	_, err = c.AdjustDraft(7)
	require.NoError(t, err)
	draft, err = c.OpenEditor(ctx, capability, provider.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, draft.BedsAvailable)
}

func TestAdjustDraftClampsAndPreviews(t *testing.T) {
	c, st := newTestController(t)
	ctx := context.Background()

	provider := snf("Sunrise Manor", 5, 20)
	require.NoError(t, st.AddProvider(ctx, provider))
	_, err := c.OpenEditor(ctx, auth.CanEditProvider(provider.ID), provider.ID)
	require.NoError(t, err)

	preview, err := c.AdjustDraft(-100)
	require.NoError(t, err)
	assert.Equal(t, 0, preview.Available)
	assert.InDelta(t, 100.0, preview.OccupiedPercent, 0.001)

	preview, err = c.AdjustDraft(100)
	require.NoError(t, err)
	assert.Equal(t, 20, preview.Available)
	assert.InDelta(t, 0.0, preview.OccupiedPercent, 0.001)
}

func TestEditorOperationsWithoutDraft(t *testing.T) {
	c, _ := newTestController(t)

	_, err := c.AdjustDraft(1)
	assert.ErrorIs(t, err, ErrNoDraft)
	_, err = c.SetDraft(1, 2)
	assert.ErrorIs(t, err, ErrNoDraft)
	assert.ErrorIs(t, c.SubmitEditor(context.Background()), ErrNoDraft)
}

func TestSubmitEditorLifecycle(t *testing.T) {
	c, st := newTestController(t)
	ctx := context.Background()

	provider := snf("Sunrise Manor", 5, 20)
	require.NoError(t, st.AddProvider(ctx, provider))
	_, err := c.OpenEditor(ctx, auth.CanEditProvider(provider.ID), provider.ID)
	require.NoError(t, err)

	// A rejected submit keeps the draft open for correction.
	_, err = c.SetDraft(25, 20)
	require.NoError(t, err)
	assert.ErrorIs(t, c.SubmitEditor(ctx), models.ErrAvailableExceedsTotal)
	assert.Equal(t, EditorOpen, c.EditorState())

	stored, err := st.GetProvider(ctx, provider.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.BedsAvailable, "failed submit must not write")

	// A corrected submit lands and closes the editor.
	_, err = c.SetDraft(10, 20)
	require.NoError(t, err)
	require.NoError(t, c.SubmitEditor(ctx))
	assert.Equal(t, EditorClosed, c.EditorState())

	stored, err = st.GetProvider(ctx, provider.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.BedsAvailable)
}

func TestSubmitBedCountsValidationOrder(t *testing.T) {
	c, st := newTestController(t)
	ctx := context.Background()

	nursing := snf("Sunrise Manor", 5, 20)
	memoryCare := models.NewProvider("Quiet Oaks", models.ServiceMemoryCare, "", "", "")
	require.NoError(t, st.AddProvider(ctx, nursing))
	require.NoError(t, st.AddProvider(ctx, memoryCare))

	tests := []struct {
		name       string
		capability auth.Capability
		target     *models.Provider
		available  int
		total      int
		wantErr    error
	}{
		{
			name:       "unauthorized wins over every later check",
			capability: auth.NoCapability,
			target:     memoryCare,
			available:  -1,
			total:      -1,
			wantErr:    models.ErrUnauthorized,
		},
		{
			name:       "service type wins over value checks",
			capability: auth.CanEditProvider(memoryCare.ID),
			target:     memoryCare,
			available:  -1,
			total:      -1,
			wantErr:    models.ErrUnsupportedServiceType,
		},
		{
			name:       "negative values rejected before the ratio check",
			capability: auth.CanEditProvider(nursing.ID),
			target:     nursing,
			available:  -1,
			total:      -5,
			wantErr:    models.ErrNegativeValue,
		},
		{
			name:       "available above total rejected",
			capability: auth.CanEditProvider(nursing.ID),
			target:     nursing,
			available:  21,
			total:      20,
			wantErr:    models.ErrAvailableExceedsTotal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.SubmitBedCounts(ctx, tt.capability, tt.target.ID, tt.available, tt.total)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, models.IsValidationError(err))
		})
	}

	// available == total is the accepted boundary.
	require.NoError(t, c.SubmitBedCounts(ctx, auth.CanEditProvider(nursing.ID), nursing.ID, 20, 20))
}

func TestSubmitBedCountsIdempotent(t *testing.T) {
	c, st := newTestController(t)
	ctx := context.Background()

	provider := snf("Sunrise Manor", 5, 20)
	require.NoError(t, st.AddProvider(ctx, provider))
	capability := auth.CanEditProvider(provider.ID)

	require.NoError(t, c.SubmitBedCounts(ctx, capability, provider.ID, 7, 20))
	require.NoError(t, c.SubmitBedCounts(ctx, capability, provider.ID, 7, 20))

	stored, err := st.GetProvider(ctx, provider.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, stored.BedsAvailable)
	assert.Equal(t, 20, stored.TotalBeds)
}

func TestSearchTogglesVisibilityOnly(t *testing.T) {
	c, st := newTestController(t)
	ctx := context.Background()

	require.NoError(t, st.AddProvider(ctx, snf("Sunrise Manor", 5, 20)))
	require.NoError(t, st.AddProvider(ctx, models.NewProvider("Quiet Oaks", models.ServiceMemoryCare, "", "", "")))
	eventuallyView(t, c, func(v RosterView) bool { return len(v.Cards) == 2 })

	view := c.SearchProviders("sunrise")
	require.Len(t, view.Cards, 2, "search never changes card membership")
	assert.True(t, view.Cards[0].Visible)
	assert.False(t, view.Cards[1].Visible)

	view = c.SearchProviders("")
	assert.True(t, view.Cards[0].Visible)
	assert.True(t, view.Cards[1].Visible)
}

func TestSearchTermSurvivesReRender(t *testing.T) {
	c, st := newTestController(t)
	ctx := context.Background()

	require.NoError(t, st.AddProvider(ctx, snf("Sunrise Manor", 5, 20)))
	eventuallyView(t, c, func(v RosterView) bool { return len(v.Cards) == 1 })
	c.SearchProviders("nothing-matches-this")

	// A new snapshot re-renders with the active term still applied.
	require.NoError(t, st.AddProvider(ctx, models.NewProvider("Quiet Oaks", models.ServiceMemoryCare, "", "", "")))
	view := eventuallyView(t, c, func(v RosterView) bool { return len(v.Cards) == 2 })
	assert.False(t, view.Cards[0].Visible)
	assert.False(t, view.Cards[1].Visible)
}

func TestRenderCategoryIsOneOff(t *testing.T) {
	c, st := newTestController(t)
	ctx := context.Background()

	require.NoError(t, st.AddProvider(ctx, snf("Alpha", 5, 20)))
	require.NoError(t, st.AddProvider(ctx, models.NewProvider("Beta", models.ServiceMemoryCare, "", "", "")))
	eventuallyView(t, c, func(v RosterView) bool { return len(v.Cards) == 2 })

	view := c.RenderCategory(string(models.ServiceMemoryCare), "", auth.NoCapability)
	require.Len(t, view.Cards, 1)
	assert.Equal(t, "Beta", view.Cards[0].Name)
	assert.Equal(t, BedAggregate{BedsAvailable: 5, Facilities: 1, TotalBeds: 20}, view.Aggregate,
		"aggregate always covers the skilled nursing population")

	// The standing subscription's filter is untouched.
	assert.Equal(t, CategoryAll, c.View(auth.NoCapability).Category)
}

func TestWatchDeliversLatestRender(t *testing.T) {
	c, st := newTestController(t)
	ctx := context.Background()

	updates, cancel := c.Watch()
	defer cancel()

	require.NoError(t, st.AddProvider(ctx, snf("Sunrise Manor", 5, 20)))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case view := <-updates:
			if len(view.Cards) == 1 {
				assert.Equal(t, "Sunrise Manor", view.Cards[0].Name)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for roster update")
		}
	}
}

func TestReviewsUnimplemented(t *testing.T) {
	c, st := newTestController(t)
	provider := snf("Sunrise Manor", 5, 20)
	require.NoError(t, st.AddProvider(context.Background(), provider))

	assert.ErrorIs(t, c.ViewReviews(provider.ID), models.ErrUnimplemented)
	assert.ErrorIs(t, c.LeaveReview(provider.ID), models.ErrUnimplemented)
}

// failingSubscribeStore simulates a store whose subscription channel is
// unreachable while point reads still work.
type failingSubscribeStore struct {
	*store.InMemoryDirectoryStore
}

func (s *failingSubscribeStore) Subscribe(ctx context.Context) (*store.Subscription, error) {
	return nil, models.ErrStoreUnavailable
}

func TestSubscribeFailureRendersErrorState(t *testing.T) {
	st := &failingSubscribeStore{InMemoryDirectoryStore: store.NewInMemoryDirectoryStore()}
	c := NewController(st, zap.NewNop())

	err := c.FilterByCategory(context.Background(), CategoryAll)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	view := c.View(auth.NoCapability)
	assert.True(t, view.Failed)
	assert.Equal(t, "Error loading providers. Please refresh the page.", view.Message)
}
