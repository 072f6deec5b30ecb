package roster

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lotuscare/facility-directory/internal/auth"
	"github.com/lotuscare/facility-directory/internal/models"
	"github.com/lotuscare/facility-directory/internal/store"
)

// ErrNoDraft is returned by editor operations when no edit draft is open.
var ErrNoDraft = errors.New("no edit draft is open")

// Controller is the live roster core: it holds the standing subscription
// to the directory store, fully replaces its in-memory snapshot on every
// change event, and re-renders the card views and aggregate banner from
// the latest snapshot. It also owns the bed-count editor state machine.
type Controller struct {
	store  store.DirectoryStore
	logger *zap.Logger

	// lifecycleMu serializes subscribe/cancel cycles so re-filtering in
	// quick succession still leaves exactly one active subscription.
	lifecycleMu sync.Mutex

	mu         sync.Mutex
	sub        *store.Subscription
	loopDone   chan struct{}
	category   string
	searchTerm string
	snapshot   []*models.Provider
	view       RosterView

	editor    EditorState
	draft     *Draft
	editorCap auth.Capability

	watchers    map[uint64]chan RosterView
	nextWatcher uint64
}

// NewController creates a roster controller over the given store.
func NewController(directoryStore store.DirectoryStore, logger *zap.Logger) *Controller {
	return &Controller{
		store:    directoryStore,
		logger:   logger,
		category: CategoryAll,
		editor:   EditorClosed,
		watchers: make(map[uint64]chan RosterView),
	}
}

// Initialize awaits the store's readiness signal and opens the standing
// subscription with the "All" filter. There is no startup delay: the store
// reports readiness explicitly.
func (c *Controller) Initialize(ctx context.Context) error {
	if err := c.store.Initialize(ctx); err != nil {
		c.logger.Error("Directory store failed to become ready", zap.Error(err))
		return err
	}
	return c.FilterByCategory(ctx, CategoryAll)
}

// FilterByCategory re-subscribes under a new filter. The prior
// subscription is cancelled first, and its consumer loop is drained before
// the replacement opens, so update streams never overlap and listeners
// never leak.
func (c *Controller) FilterByCategory(ctx context.Context, category string) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	prev, prevDone := c.sub, c.loopDone
	c.sub, c.loopDone = nil, nil
	c.category = category
	c.mu.Unlock()

	if prev != nil {
		prev.Cancel()
		<-prevDone
	}

	sub, err := c.store.Subscribe(ctx)
	if err != nil {
		c.logger.Error("Failed to open roster subscription",
			zap.String("category", category),
			zap.Error(err),
		)
		c.failView(category)
		return err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.sub = sub
	c.loopDone = done
	// Re-render the held snapshot under the new filter right away; the
	// subscription's next delivery refreshes the snapshot itself.
	c.renderLocked()
	c.mu.Unlock()

	go c.consume(sub, done)
	c.logger.Info("Roster subscription opened", zap.String("category", category))
	return nil
}

// Stop cancels the standing subscription and closes all watcher channels.
func (c *Controller) Stop() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	sub, done := c.sub, c.loopDone
	c.sub, c.loopDone = nil, nil
	c.watchers = make(map[uint64]chan RosterView)
	c.mu.Unlock()

	if sub != nil {
		sub.Cancel()
		<-done
	}
}

// consume is the event loop for one subscription: each received snapshot
// fully replaces the previous one and triggers a complete re-render. The
// loop exits when the subscription is cancelled.
func (c *Controller) consume(sub *store.Subscription, done chan struct{}) {
	defer close(done)
	for snapshot := range sub.Snapshots() {
		c.applySnapshot(snapshot)
	}
}

func (c *Controller) applySnapshot(snapshot []*models.Provider) {
	c.mu.Lock()
	c.snapshot = snapshot
	c.renderLocked()
	view := c.view
	watchers := make([]chan RosterView, 0, len(c.watchers))
	for _, ch := range c.watchers {
		watchers = append(watchers, ch)
	}
	c.mu.Unlock()

	for _, ch := range watchers {
		pushLatest(ch, view)
	}
}

// renderLocked rebuilds the rendered view from the current snapshot:
// filter, sort, search visibility, and the aggregate banner (always over
// the full snapshot's skilled-nursing population, not the filtered view).
func (c *Controller) renderLocked() {
	filtered := FilterByType(c.snapshot, c.category)
	ordered := SortForCategory(filtered, c.category)
	cards := BuildCards(ordered, auth.NoCapability)
	for i := range cards {
		cards[i].Visible = cards[i].MatchesSearch(c.searchTerm)
	}

	c.view = RosterView{
		Category:      c.category,
		Cards:         cards,
		Aggregate:     Aggregate(c.snapshot),
		ShowAggregate: c.category == string(models.ServiceSkilledNursing),
		RenderedAt:    time.Now().UTC(),
	}
}

// failView replaces the roster with a visible, distinguishable error state
// without crashing anything else on the page.
func (c *Controller) failView(category string) {
	c.mu.Lock()
	c.view = RosterView{
		Category:   category,
		RenderedAt: time.Now().UTC(),
		Failed:     true,
		Message:    "Error loading providers. Please refresh the page.",
	}
	view := c.view
	watchers := make([]chan RosterView, 0, len(c.watchers))
	for _, ch := range c.watchers {
		watchers = append(watchers, ch)
	}
	c.mu.Unlock()

	for _, ch := range watchers {
		pushLatest(ch, view)
	}
}

// SearchProviders toggles card visibility by case-insensitive substring
// match over name, location, and description. Purely visual: the
// underlying snapshot and card membership are untouched.
func (c *Controller) SearchProviders(term string) RosterView {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.searchTerm = term
	for i := range c.view.Cards {
		c.view.Cards[i].Visible = c.view.Cards[i].MatchesSearch(term)
	}
	return c.view
}

// RenderCategory renders a one-off view of the latest snapshot under the
// given filter and search term. It does not touch the standing
// subscription or the page-level filter; the same pure policy functions
// produce the result.
func (c *Controller) RenderCategory(category, term string, capability auth.Capability) RosterView {
	c.mu.Lock()
	snapshot := c.snapshot
	failed, message := c.view.Failed, c.view.Message
	c.mu.Unlock()

	filtered := FilterByType(snapshot, category)
	ordered := SortForCategory(filtered, category)
	cards := BuildCards(ordered, capability)
	for i := range cards {
		cards[i].Visible = cards[i].MatchesSearch(term)
	}

	return RosterView{
		Category:      category,
		Cards:         cards,
		Aggregate:     Aggregate(snapshot),
		ShowAggregate: category == string(models.ServiceSkilledNursing),
		RenderedAt:    time.Now().UTC(),
		Failed:        failed,
		Message:       message,
	}
}

// View returns the current rendered roster with each card's edit
// affordance computed for the given session capability.
func (c *Controller) View(capability auth.Capability) RosterView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.ForCapability(capability)
}

// Watch registers a viewer for rendered roster updates. The returned
// cancel function must be called when the viewer goes away. Delivery is
// latest-wins: a slow viewer receives the newest render, never a backlog.
// The channel is never closed; viewers stop reading when they cancel.
func (c *Controller) Watch() (<-chan RosterView, func()) {
	c.mu.Lock()
	id := c.nextWatcher
	c.nextWatcher++
	ch := make(chan RosterView, 1)
	c.watchers[id] = ch
	view := c.view
	c.mu.Unlock()

	pushLatest(ch, view)

	cancel := func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
	return ch, cancel
}

// OpenEditor opens a bed-count draft for the given provider. The
// capability is checked before anything else; the point read then
// populates the draft with store-confirmed values. Opening while another
// draft is open force-closes the previous one — drafts never stack.
func (c *Controller) OpenEditor(ctx context.Context, capability auth.Capability, providerID uuid.UUID) (Draft, error) {
	if !capability.AllowsEdit(providerID) {
		c.logger.Warn("Editor open refused: capability mismatch",
			zap.String("provider_id", providerID.String()),
		)
		return Draft{}, models.ErrUnauthorized
	}

	provider, err := c.store.GetProvider(ctx, providerID)
	if err != nil {
		return Draft{}, err
	}
	if !provider.IsSkilledNursing() {
		return Draft{}, models.ErrUnsupportedServiceType
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.editor != EditorClosed {
		c.logger.Debug("Force-closing previous edit draft",
			zap.String("previous_provider_id", c.draft.ProviderID.String()),
		)
	}
	c.draft = &Draft{
		ProviderID:    provider.ID,
		ProviderName:  provider.Name,
		LastBedUpdate: provider.LastBedUpdate,
		BedsAvailable: provider.BedsAvailable,
		TotalBeds:     provider.TotalBeds,
	}
	c.editor = EditorOpen
	c.editorCap = capability
	return *c.draft, nil
}

// CloseEditor discards the open draft, if any.
func (c *Controller) CloseEditor() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = nil
	c.editor = EditorClosed
}

// AdjustDraft steps the draft's available count by delta, clamped to
// [0, TotalBeds], and returns the refreshed occupancy preview. The store
// is not touched until explicit submit.
func (c *Controller) AdjustDraft(delta int) (BedPreview, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.editor != EditorOpen {
		return BedPreview{}, ErrNoDraft
	}
	c.draft.Adjust(delta)
	return c.draft.Preview(), nil
}

// SetDraft replaces both draft fields from direct form input and returns
// the refreshed preview. Values are validated at submit, not here.
func (c *Controller) SetDraft(available, total int) (BedPreview, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.editor != EditorOpen {
		return BedPreview{}, ErrNoDraft
	}
	c.draft.BedsAvailable = available
	c.draft.TotalBeds = total
	return c.draft.Preview(), nil
}

// EditorState reports the editor's current lifecycle state.
func (c *Controller) EditorState() EditorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editor
}

// SubmitEditor runs the update workflow for the open draft. On success
// the draft is discarded and the re-render arrives through the standing
// subscription's echo of the write. On any failure the draft stays open
// so the user may correct it or retry manually; nothing retries on its
// own.
func (c *Controller) SubmitEditor(ctx context.Context) error {
	c.mu.Lock()
	if c.editor != EditorOpen {
		c.mu.Unlock()
		return ErrNoDraft
	}
	draft := *c.draft
	capability := c.editorCap
	c.editor = EditorSubmitting
	c.mu.Unlock()

	err := c.SubmitBedCounts(ctx, capability, draft.ProviderID, draft.BedsAvailable, draft.TotalBeds)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.editor == EditorSubmitting {
			c.editor = EditorOpen
		}
		return err
	}
	c.draft = nil
	c.editor = EditorClosed
	return nil
}

// SubmitBedCounts is the bed-count update workflow. Preconditions are
// checked in order, short-circuiting on the first failure:
//  1. the capability must authorize exactly this provider,
//  2. the record must be a skilled nursing facility,
//  3. both counts must be non-negative,
//  4. available must not exceed total.
//
// On success it issues one atomic field update and reports success only
// after the store acknowledges the write. The roster snapshot is never
// mutated here: the displayed state updates when the write echoes back
// through the subscription, so viewers only ever see store-confirmed
// values.
func (c *Controller) SubmitBedCounts(ctx context.Context, capability auth.Capability, providerID uuid.UUID, available, total int) error {
	if !capability.AllowsEdit(providerID) {
		c.logger.Warn("Bed-count submit refused: capability mismatch",
			zap.String("provider_id", providerID.String()),
		)
		return models.ErrUnauthorized
	}

	provider, err := c.store.GetProvider(ctx, providerID)
	if err != nil {
		return err
	}
	if !provider.IsSkilledNursing() {
		return models.ErrUnsupportedServiceType
	}
	if available < 0 || total < 0 {
		return models.ErrNegativeValue
	}
	if available > total {
		return models.ErrAvailableExceedsTotal
	}

	if err := c.store.UpdateBedCounts(ctx, providerID, available, total); err != nil {
		c.logger.Error("Bed-count write failed",
			zap.String("provider_id", providerID.String()),
			zap.Error(err),
		)
		return err
	}

	c.logger.Info("Bed availability updated",
		zap.String("provider_id", providerID.String()),
		zap.Int("beds_available", available),
		zap.Int("total_beds", total),
	)
	return nil
}

// ViewReviews is a stub for the review feature. It surfaces a clear
// "not yet available" signal instead of failing silently.
func (c *Controller) ViewReviews(providerID uuid.UUID) error {
	c.logger.Info("View reviews requested for unimplemented feature",
		zap.String("provider_id", providerID.String()),
	)
	return models.ErrUnimplemented
}

// LeaveReview is a stub for the review feature.
func (c *Controller) LeaveReview(providerID uuid.UUID) error {
	c.logger.Info("Leave review requested for unimplemented feature",
		zap.String("provider_id", providerID.String()),
	)
	return models.ErrUnimplemented
}

// pushLatest delivers a view with latest-wins semantics on a buffered
// channel.
func pushLatest(ch chan RosterView, view RosterView) {
	select {
	case ch <- view:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- view:
		default:
		}
	}
}
