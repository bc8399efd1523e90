package notifications

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/safetrack-io/safetrack/internal/domain"
	"github.com/safetrack-io/safetrack/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrChannelNotFound, Status: http.StatusNotFound, Message: "notification channel not found"},
	{Error: ErrChannelNotOwned, Status: http.StatusForbidden, Message: "channel does not belong to tenant"},
}

// Handler handles HTTP requests for the notifications module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new notifications handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers notification routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/channels", func(r chi.Router) {
		r.Get("/", h.ListChannels)
		r.Post("/", h.CreateChannel)
		r.Patch("/{id}", h.UpdateChannel)
		r.Delete("/{id}", h.DeleteChannel)
	})
	r.Get("/queue/stats", h.QueueStats)
}

// CreateChannelRequest represents request body for creating a channel.
type CreateChannelRequest struct {
	Name   string   `json:"name" validate:"required,max=100"`
	Type   string   `json:"type" validate:"required,oneof=webhook email"`
	Target string   `json:"target" validate:"required"`
	Kinds  []string `json:"kinds" validate:"dive,oneof=incident_transition sla_escalation"`
}

// UpdateChannelRequest represents request body for updating a channel.
type UpdateChannelRequest struct {
	IsEnabled *bool    `json:"is_enabled" validate:"required"`
	Kinds     []string `json:"kinds" validate:"dive,oneof=incident_transition sla_escalation"`
}

// ListChannels handles GET /channels.
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.service.ListChannels(r.Context(), httputil.GetTenantID(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, channels)
}

// CreateChannel handles POST /channels.
func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var req CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	channel, err := h.service.CreateChannel(r.Context(), CreateChannelInput{
		TenantID: httputil.GetTenantID(r.Context()),
		Name:     req.Name,
		Type:     domain.ChannelType(req.Type),
		Target:   req.Target,
		Kinds:    req.Kinds,
	})
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.Success(w, http.StatusCreated, channel)
}

// UpdateChannel handles PATCH /channels/{id}.
func (h *Handler) UpdateChannel(w http.ResponseWriter, r *http.Request) {
	var req UpdateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	channel, err := h.service.UpdateChannel(r.Context(),
		httputil.GetTenantID(r.Context()), chi.URLParam(r, "id"), *req.IsEnabled, req.Kinds)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, channel)
}

// DeleteChannel handles DELETE /channels/{id}.
func (h *Handler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteChannel(r.Context(), httputil.GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// QueueStats handles GET /queue/stats.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.QueueStats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	RecordQueueStats(stats)
	httputil.Success(w, http.StatusOK, stats)
}
