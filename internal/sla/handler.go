package sla

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/safetrack-io/safetrack/internal/domain"
	"github.com/safetrack-io/safetrack/internal/pkg/httputil"
)

// Handler handles SLA administration HTTP requests.
type Handler struct {
	service  *Service
	sweeper  *Sweeper
	validate *validator.Validate
}

// NewHandler creates a new SLA handler.
func NewHandler(service *Service, sweeper *Sweeper) *Handler {
	return &Handler{
		service:  service,
		sweeper:  sweeper,
		validate: validator.New(),
	}
}

// RegisterRoutes registers SLA configuration routes. The caller mounts
// these behind the manager gate.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sla", func(r chi.Router) {
		r.Post("/sweep", h.RunSweep)
		r.Get("/configs", h.ListConfigs)
		r.Put("/configs", h.UpsertConfig)
		r.Delete("/configs/{id}", h.DeleteConfig)
	})
}

// RegisterAlertRoutes registers emergency alert routes, available to any
// authenticated user.
func (h *Handler) RegisterAlertRoutes(r chi.Router) {
	r.Route("/alerts", func(r chi.Router) {
		r.Post("/", h.TriggerAlert)
		r.Post("/{id}/acknowledge", h.AcknowledgeAlert)
		r.Post("/{id}/resolve", h.ResolveAlert)
	})
}

var slaErrorMappings = []httputil.ErrorMapping{
	{Error: domain.ErrNotFound, Status: http.StatusNotFound, Message: "not found"},
	{Error: domain.ErrInvalidTransition, Status: http.StatusConflict, Message: "invalid transition"},
	{Error: domain.ErrStaleVersion, Status: http.StatusConflict, Message: "concurrent modification"},
	{Error: ErrSweepInProgress, Status: http.StatusConflict, Message: "sweep already in progress"},
}

// RunSweep triggers one sweep immediately. POST /sla/sweep
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sweeper.Run(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, slaErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, stats)
}

// ListConfigs returns the tenant's threshold rows. GET /sla/configs
func (h *Handler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.service.ListConfigs(r.Context(), httputil.GetTenantID(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, slaErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, configs)
}

// UpsertConfigRequest is the threshold upsert payload. Durations are
// seconds.
type UpsertConfigRequest struct {
	Category         string   `json:"category"`
	Priority         string   `json:"priority"`
	MaxResponse      int64    `json:"max_response_seconds" validate:"required,min=1"`
	FirstEscalation  int64    `json:"first_escalation_seconds" validate:"required,min=1"`
	SecondEscalation int64    `json:"second_escalation_seconds" validate:"required,min=1"`
	NotifyChannels   []string `json:"notify_channels"`
	Recipients       []string `json:"recipients"`
}

// UpsertConfig creates or replaces a threshold row. PUT /sla/configs
func (h *Handler) UpsertConfig(w http.ResponseWriter, r *http.Request) {
	var req UpsertConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	config := &domain.SLAConfig{
		TenantID:         httputil.GetTenantID(r.Context()),
		Category:         req.Category,
		Priority:         req.Priority,
		MaxResponse:      time.Duration(req.MaxResponse) * time.Second,
		FirstEscalation:  time.Duration(req.FirstEscalation) * time.Second,
		SecondEscalation: time.Duration(req.SecondEscalation) * time.Second,
		NotifyChannels:   req.NotifyChannels,
		Recipients:       req.Recipients,
	}
	if err := h.service.UpsertConfig(r.Context(), config); err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.Success(w, http.StatusOK, config)
}

// DeleteConfig removes a threshold row. DELETE /sla/configs/{id}
func (h *Handler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteConfig(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.HandleError(r.Context(), w, err, slaErrorMappings)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TriggerAlertRequest is the emergency alert payload.
type TriggerAlertRequest struct {
	SubjectID string `json:"subject_id" validate:"required"`
	Priority  string `json:"priority" validate:"required,oneof=low medium high critical"`
}

// TriggerAlert registers an emergency alert. POST /alerts
func (h *Handler) TriggerAlert(w http.ResponseWriter, r *http.Request) {
	var req TriggerAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	event, err := h.service.TriggerAlert(r.Context(), TriggerAlertInput{
		TenantID:  httputil.GetTenantID(r.Context()),
		SubjectID: req.SubjectID,
		Priority:  req.Priority,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, slaErrorMappings)
		return
	}
	httputil.Success(w, http.StatusCreated, event)
}

// AcknowledgeAlert stops the timer for an alert. POST /alerts/{id}/acknowledge
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	if err := h.service.AcknowledgeAlert(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.HandleError(r.Context(), w, err, slaErrorMappings)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResolveAlert marks an alert's condition resolved. POST /alerts/{id}/resolve
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ResolveAlert(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.HandleError(r.Context(), w, err, slaErrorMappings)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
