package violations

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/safetrack-io/safetrack/internal/domain"
	"github.com/safetrack-io/safetrack/internal/pkg/httputil"
)

// Handler handles HTTP requests for the violation sub-workflow.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new violations handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers violation routes under the incident tree plus
// the contractor history listing.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents/{id}/violation", func(r chi.Router) {
		r.Get("/", h.GetViolation)
		r.Post("/", h.SubmitViolation)
		r.Post("/department-manager-decision", h.DepartmentManagerDecide)
		r.Post("/contractor-acknowledgment", h.ContractorAcknowledge)
		r.Post("/controller-confirmation", h.ControllerConfirm)
		r.Post("/final-ruling", h.HSSEFinalRuling)
	})
	r.Get("/contractors/{contractorID}/violations", h.ContractorHistory)
}

var violationErrorMappings = []httputil.ErrorMapping{
	{Error: domain.ErrNotFound, Status: http.StatusNotFound},
	{Error: domain.ErrForbidden, Status: http.StatusForbidden},
	{Error: domain.ErrInvalidTransition, Status: http.StatusConflict},
	{Error: domain.ErrPrerequisitesNotMet, Status: http.StatusConflict},
	{Error: domain.ErrMissingJustification, Status: http.StatusBadRequest},
}

// GetViolation handles GET /incidents/{id}/violation request.
func (h *Handler) GetViolation(w http.ResponseWriter, r *http.Request) {
	violation, err := h.service.GetViolationByIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, violationErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, violation)
}

// SubmitViolationRequest represents the request body for submitting a
// violation. An omitted penalty type defaults by occurrence ordinal.
type SubmitViolationRequest struct {
	PenaltyType     string `json:"penalty_type" validate:"omitempty,oneof=fine warning"`
	FineAmount      int64  `json:"fine_amount" validate:"min=0"`
	EvidenceSummary string `json:"evidence_summary" validate:"required"`
}

// SubmitViolation handles POST /incidents/{id}/violation request.
func (h *Handler) SubmitViolation(w http.ResponseWriter, r *http.Request) {
	var req SubmitViolationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	violation, err := h.service.SubmitViolation(r.Context(), SubmitViolationInput{
		IncidentID:      chi.URLParam(r, "id"),
		ActorID:         httputil.GetUserID(r.Context()),
		PenaltyType:     domain.PenaltyType(req.PenaltyType),
		FineAmount:      req.FineAmount,
		EvidenceSummary: req.EvidenceSummary,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, violationErrorMappings)
		return
	}
	httputil.Success(w, http.StatusCreated, violation)
}

// DMDecisionRequest represents the department manager's verdict.
type DMDecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
	Notes    string `json:"notes"`
}

// DepartmentManagerDecide handles POST
// /incidents/{id}/violation/department-manager-decision request.
func (h *Handler) DepartmentManagerDecide(w http.ResponseWriter, r *http.Request) {
	var req DMDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	violation, err := h.service.DepartmentManagerDecide(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()), DMDecision(req.Decision), req.Notes)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, violationErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, violation)
}

// ContractorAckRequest represents the site representative's response.
type ContractorAckRequest struct {
	Decision string `json:"decision" validate:"required,oneof=acknowledged contested"`
	Notes    string `json:"notes"`
}

// ContractorAcknowledge handles POST
// /incidents/{id}/violation/contractor-acknowledgment request.
func (h *Handler) ContractorAcknowledge(w http.ResponseWriter, r *http.Request) {
	var req ContractorAckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	violation, err := h.service.ContractorAcknowledge(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()), ContractorDecision(req.Decision), req.Notes)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, violationErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, violation)
}

// NotesRequest carries optional decision notes.
type NotesRequest struct {
	Notes string `json:"notes"`
}

// ControllerConfirm handles POST
// /incidents/{id}/violation/controller-confirmation request.
func (h *Handler) ControllerConfirm(w http.ResponseWriter, r *http.Request) {
	var req NotesRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	violation, err := h.service.ControllerConfirm(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()), req.Notes)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, violationErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, violation)
}

// FinalRulingRequest represents the HSSE manager's ruling on a contested
// violation.
type FinalRulingRequest struct {
	Uphold bool   `json:"uphold"`
	Notes  string `json:"notes" validate:"required,min=10"`
}

// HSSEFinalRuling handles POST /incidents/{id}/violation/final-ruling
// request.
func (h *Handler) HSSEFinalRuling(w http.ResponseWriter, r *http.Request) {
	var req FinalRulingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	violation, err := h.service.HSSEFinalRuling(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()), req.Uphold, req.Notes)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, violationErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, violation)
}

// ContractorHistory handles GET /contractors/{contractorID}/violations
// request.
func (h *Handler) ContractorHistory(w http.ResponseWriter, r *http.Request) {
	violations, err := h.service.ContractorHistory(r.Context(), httputil.GetTenantID(r.Context()), chi.URLParam(r, "contractorID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, violationErrorMappings)
		return
	}
	if violations == nil {
		violations = make([]*domain.Violation, 0)
	}
	httputil.Success(w, http.StatusOK, violations)
}
