package disputes

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/safetrack-io/safetrack/internal/domain"
	"github.com/safetrack-io/safetrack/internal/pkg/httputil"
)

// Handler handles HTTP requests for the dispute module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new disputes handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers dispute routes under the incident tree.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents/{id}/disputes", func(r chi.Router) {
		r.Get("/", h.ListDisputes)
		r.Post("/", h.OpenDispute)
		r.Get("/open", h.GetOpenDispute)
		r.Post("/resolve", h.ResolveDispute)
	})
}

var disputeErrorMappings = []httputil.ErrorMapping{
	{Error: domain.ErrNotFound, Status: http.StatusNotFound},
	{Error: domain.ErrForbidden, Status: http.StatusForbidden},
	{Error: domain.ErrInvalidTransition, Status: http.StatusConflict},
	{Error: domain.ErrPrerequisitesNotMet, Status: http.StatusConflict},
	{Error: domain.ErrMissingJustification, Status: http.StatusBadRequest},
}

// OpenDisputeRequest represents the request body for opening a dispute.
type OpenDisputeRequest struct {
	Category     string   `json:"category" validate:"required,oneof=investigation_scope findings_accuracy timeline other"`
	Reason       string   `json:"reason" validate:"required,min=10"`
	EvidenceRefs []string `json:"evidence_refs"`
}

// OpenDispute handles POST /incidents/{id}/disputes request.
func (h *Handler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	var req OpenDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	dispute, err := h.service.Open(r.Context(), OpenDisputeInput{
		IncidentID:   chi.URLParam(r, "id"),
		ActorID:      httputil.GetUserID(r.Context()),
		Category:     domain.DisputeCategory(req.Category),
		Reason:       req.Reason,
		EvidenceRefs: req.EvidenceRefs,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, disputeErrorMappings)
		return
	}
	httputil.Success(w, http.StatusCreated, dispute)
}

// ResolveDisputeRequest represents the mediator's resolution.
type ResolveDisputeRequest struct {
	Decision string `json:"decision" validate:"required,oneof=override_rejection maintain_rejection partial_rework"`
	Notes    string `json:"notes" validate:"required,min=10"`
}

// ResolveDispute handles POST /incidents/{id}/disputes/resolve request.
func (h *Handler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	var req ResolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	dispute, err := h.service.Resolve(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()), domain.DisputeDecision(req.Decision), req.Notes)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, disputeErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, dispute)
}

// GetOpenDispute handles GET /incidents/{id}/disputes/open request.
func (h *Handler) GetOpenDispute(w http.ResponseWriter, r *http.Request) {
	dispute, err := h.service.GetOpenDispute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, disputeErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, dispute)
}

// ListDisputes handles GET /incidents/{id}/disputes request.
func (h *Handler) ListDisputes(w http.ResponseWriter, r *http.Request) {
	disputes, err := h.service.ListDisputes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, disputeErrorMappings)
		return
	}
	if disputes == nil {
		disputes = make([]*domain.Dispute, 0)
	}
	httputil.Success(w, http.StatusOK, disputes)
}
