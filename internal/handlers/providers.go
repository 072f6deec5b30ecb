package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lotuscare/facility-directory/internal/auth"
	"github.com/lotuscare/facility-directory/internal/config"
	"github.com/lotuscare/facility-directory/internal/logging"
	"github.com/lotuscare/facility-directory/internal/middleware"
	"github.com/lotuscare/facility-directory/internal/models"
	"github.com/lotuscare/facility-directory/internal/roster"
	"github.com/lotuscare/facility-directory/internal/store"
)

// ProviderHandler serves the facility directory API: the rendered roster,
// the live roster stream, record management, and the bed-count editor
// workflow.
type ProviderHandler struct {
	logger     *zap.Logger
	cfg        *config.Config
	store      store.DirectoryStore
	controller *roster.Controller
	resolver   *auth.Resolver
}

// NewProviderHandler creates the handler set for /providers.
func NewProviderHandler(logger *zap.Logger, cfg *config.Config, directoryStore store.DirectoryStore, controller *roster.Controller, resolver *auth.Resolver) *ProviderHandler {
	return &ProviderHandler{
		logger:     logger,
		cfg:        cfg,
		store:      directoryStore,
		controller: controller,
		resolver:   resolver,
	}
}

// Routes mounts the provider API. The stream route is exempt from the
// request timeout because it holds its response open.
func (h *ProviderHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/stream", h.StreamRoster)

	r.Group(func(r chi.Router) {
		if h.cfg.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(h.cfg.RequestTimeout))
		}

		r.Get("/", h.ListProviders)
		r.Post("/", h.CreateProvider)
		r.Post("/roster/filter", h.FilterRoster)
		r.Post("/roster/search", h.SearchRoster)

		r.Route("/{providerID}", func(r chi.Router) {
			r.Get("/", h.GetProvider)
			r.Delete("/", h.DeleteProvider)
			r.Get("/editor", h.OpenEditor)
			r.Put("/beds", h.UpdateBedCounts)
			r.Get("/reviews", h.ViewReviews)
			r.Post("/reviews", h.LeaveReview)
		})
	})

	return r
}

// capability resolves the per-request edit capability from the
// authenticated identity, if any. Anonymous viewers browse with none.
func (h *ProviderHandler) capability(r *http.Request) auth.Capability {
	return h.resolver.Resolve(r.Context(), middleware.IdentityEmail(r.Context()))
}

// log returns the handler logger enriched with the request's correlation
// and request IDs.
func (h *ProviderHandler) log(ctx context.Context) *zap.Logger {
	return logging.EnrichLoggerWithContext(ctx, h.logger)
}

func (h *ProviderHandler) providerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid provider ID", err)
		return uuid.Nil, false
	}
	return id, true
}

// ListProviders renders the roster from the latest snapshot for the given
// category and search term. The aggregate banner in the response always
// covers the skilled-nursing population regardless of the filter.
func (h *ProviderHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		category = roster.CategoryAll
	}
	term := r.URL.Query().Get("q")

	view := h.controller.RenderCategory(category, term, h.capability(r))
	if view.Failed {
		writeErrorResponse(w, http.StatusServiceUnavailable, view.Message, models.ErrStoreUnavailable)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

// FilterRoster re-subscribes the shared page roster under a new category.
// The prior subscription is cancelled before the replacement opens.
func (h *ProviderHandler) FilterRoster(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Category == "" {
		req.Category = roster.CategoryAll
	}

	if err := h.controller.FilterByCategory(r.Context(), req.Category); err != nil {
		h.log(r.Context()).Error("Failed to re-filter roster", zap.String("category", req.Category), zap.Error(err))
		writeErrorResponse(w, statusFromError(err), "Failed to apply filter", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.controller.View(h.capability(r)))
}

// SearchRoster toggles card visibility on the shared roster view.
func (h *ProviderHandler) SearchRoster(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Term string `json:"term"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	h.controller.SearchProviders(req.Term)
	writeJSONResponse(w, http.StatusOK, h.controller.View(h.capability(r)))
}

// StreamRoster delivers rendered roster snapshots as server-sent events.
// Every store-confirmed change reaches every connected viewer.
func (h *ProviderHandler) StreamRoster(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorResponse(w, http.StatusInternalServerError, "Streaming unsupported", nil)
		return
	}

	capability := h.capability(r)
	updates, cancel := h.controller.Watch()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case view := <-updates:
			data, err := json.Marshal(view.ForCapability(capability))
			if err != nil {
				h.log(r.Context()).Error("Failed to marshal roster view for stream", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// GetProvider returns one provider record.
func (h *ProviderHandler) GetProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := h.providerID(w, r)
	if !ok {
		return
	}

	provider, err := h.store.GetProvider(r.Context(), id)
	if err != nil {
		writeErrorResponse(w, statusFromError(err), "Failed to get provider", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, provider)
}

// CreateProvider registers a new facility record.
func (h *ProviderHandler) CreateProvider(w http.ResponseWriter, r *http.Request) {
	var provider models.Provider
	if err := json.NewDecoder(r.Body).Decode(&provider); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if provider.Name == "" || provider.ServiceType == "" {
		writeErrorResponse(w, http.StatusBadRequest, "Name and service type are required", models.ErrInvalidProviderData)
		return
	}

	record := models.NewProvider(provider.Name, provider.ServiceType, provider.Location, provider.Description, provider.AdminEmail)
	record.Contact = provider.Contact
	record.Email = provider.Email
	record.Website = provider.Website
	record.Rating = provider.Rating
	record.BedsAvailable = provider.BedsAvailable
	record.TotalBeds = provider.TotalBeds

	if err := h.store.AddProvider(r.Context(), record); err != nil {
		h.log(r.Context()).Error("Failed to add provider", zap.Error(err))
		writeErrorResponse(w, statusFromError(err), "Failed to add provider", err)
		return
	}

	h.log(r.Context()).Info("Provider registered",
		zap.String("provider_id", record.ID.String()),
		zap.String("name", record.Name),
		zap.String("service_type", string(record.ServiceType)),
	)
	writeJSONResponse(w, http.StatusCreated, record)
}

// DeleteProvider removes a facility record.
func (h *ProviderHandler) DeleteProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := h.providerID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteProvider(r.Context(), id); err != nil {
		writeErrorResponse(w, statusFromError(err), "Failed to delete provider", err)
		return
	}
	writeJSONResponse(w, http.StatusNoContent, nil)
}

// OpenEditor opens a bed-count draft for the authenticated owner and
// returns the draft with its occupancy preview.
func (h *ProviderHandler) OpenEditor(w http.ResponseWriter, r *http.Request) {
	id, ok := h.providerID(w, r)
	if !ok {
		return
	}

	draft, err := h.controller.OpenEditor(r.Context(), h.capability(r), id)
	if err != nil {
		writeErrorResponse(w, statusFromError(err), "Cannot open bed availability editor", err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"draft":   draft,
		"preview": draft.Preview(),
	})
}

// UpdateBedCounts runs the bed-count update workflow for the authenticated
// owner. Success is reported only after the store acknowledges the write;
// the updated roster reaches viewers through the stream.
func (h *ProviderHandler) UpdateBedCounts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.providerID(w, r)
	if !ok {
		return
	}

	var req struct {
		BedsAvailable int `json:"beds_available"`
		TotalBeds     int `json:"total_beds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := h.controller.SubmitBedCounts(r.Context(), h.capability(r), id, req.BedsAvailable, req.TotalBeds)
	if err != nil {
		writeErrorResponse(w, statusFromError(err), "Failed to update bed availability", err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"message": "Bed availability updated successfully",
		"status":  "success",
	})
}

// ViewReviews is the stub for the review feature.
func (h *ProviderHandler) ViewReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := h.providerID(w, r)
	if !ok {
		return
	}
	err := h.controller.ViewReviews(id)
	writeErrorResponse(w, statusFromError(err), "Reviews feature coming soon", err)
}

// LeaveReview is the stub for the review feature.
func (h *ProviderHandler) LeaveReview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.providerID(w, r)
	if !ok {
		return
	}
	err := h.controller.LeaveReview(id)
	writeErrorResponse(w, statusFromError(err), "Leave review feature coming soon", err)
}
