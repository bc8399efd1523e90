package workflow

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/safetrack-io/safetrack/internal/domain"
	"github.com/safetrack-io/safetrack/internal/pkg/httputil"
)

// Pagination constants.
const (
	DefaultIncidentsLimit = 50
	MaxIncidentsLimit     = 200
)

// Handler handles HTTP requests for the incident workflow.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new workflow handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers all incident workflow routes. Authentication is
// applied by the caller; authorization happens in the role gate.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.ListIncidents)
		r.Post("/", h.ReportIncident)
		r.Get("/{id}", h.GetIncident)
		r.Delete("/{id}", h.DeleteIncident)
		r.Get("/{id}/audit", h.GetAuditTrail)
		r.Get("/{id}/closure-readiness", h.GetClosureReadiness)
		r.Post("/{id}/transition", h.ProposeTransition)
		r.Post("/{id}/manager-decision", h.ManagerDecision)
		r.Post("/{id}/reporter-response", h.ReporterResponse)
		r.Put("/{id}/findings", h.RecordFindings)
		r.Post("/{id}/submit-investigation", h.SubmitInvestigation)
		r.Post("/{id}/close", h.CloseIncident)
		r.Post("/{id}/close-on-spot", h.CloseOnSpot)
	})
}

var incidentErrorMappings = []httputil.ErrorMapping{
	{Error: domain.ErrNotFound, Status: http.StatusNotFound},
	{Error: domain.ErrForbidden, Status: http.StatusForbidden},
	{Error: domain.ErrInvalidTransition, Status: http.StatusConflict},
	{Error: domain.ErrPrerequisitesNotMet, Status: http.StatusConflict},
	{Error: domain.ErrMissingJustification, Status: http.StatusBadRequest},
}

// EvidencePhotoRequest represents one uploaded photo reference.
type EvidencePhotoRequest struct {
	StorageRef  string `json:"storage_ref" validate:"required,max=512"`
	ContentType string `json:"content_type" validate:"required"`
	SizeBytes   int64  `json:"size_bytes" validate:"required,min=1"`
}

func (p *EvidencePhotoRequest) ToDomain() domain.EvidencePhoto {
	return domain.EvidencePhoto{
		StorageRef:  p.StorageRef,
		ContentType: p.ContentType,
		SizeBytes:   p.SizeBytes,
	}
}

// ReportIncidentRequest represents the request body for reporting an incident.
type ReportIncidentRequest struct {
	Title             string                 `json:"title" validate:"required,min=1,max=255"`
	Description       string                 `json:"description" validate:"required"`
	Category          string                 `json:"category" validate:"required,oneof=incident observation security near_miss"`
	Severity          int                    `json:"severity" validate:"required,min=1,max=5"`
	PotentialSeverity *int                   `json:"potential_severity" validate:"omitempty,min=1,max=5"`
	DepartmentID      string                 `json:"department_id" validate:"required"`
	OccurredAt        time.Time              `json:"occurred_at" validate:"required"`
	EvidencePhotos    []EvidencePhotoRequest `json:"evidence_photos" validate:"omitempty,dive"`
}

// ReportIncident handles POST /incidents request.
func (h *Handler) ReportIncident(w http.ResponseWriter, r *http.Request) {
	var req ReportIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := ReportIncidentInput{
		TenantID:     httputil.GetTenantID(r.Context()),
		Title:        req.Title,
		Description:  req.Description,
		Category:     domain.IncidentCategory(req.Category),
		Severity:     domain.Severity(req.Severity),
		DepartmentID: req.DepartmentID,
		OccurredAt:   req.OccurredAt,
	}
	if req.PotentialSeverity != nil {
		p := domain.Severity(*req.PotentialSeverity)
		input.PotentialSeverity = &p
	}
	for _, photo := range req.EvidencePhotos {
		input.EvidencePhotos = append(input.EvidencePhotos, photo.ToDomain())
	}

	incident, err := h.service.ReportIncident(r.Context(), input, httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, incidentErrorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

// GetIncident handles GET /incidents/{id} request.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, incidentErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// ListIncidents handles GET /incidents request.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	filters := IncidentFilters{
		TenantID: httputil.GetTenantID(r.Context()),
		Limit:    DefaultIncidentsLimit,
	}

	if status := r.URL.Query().Get("status"); status != "" {
		s := domain.IncidentStatus(status)
		if !s.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		filters.Status = &s
	}
	if category := r.URL.Query().Get("category"); category != "" {
		c := domain.IncidentCategory(category)
		if !c.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "invalid category filter")
			return
		}
		filters.Category = &c
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > MaxIncidentsLimit {
			parsed = MaxIncidentsLimit
		}
		filters.Limit = parsed
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		parsed, err := strconv.Atoi(o)
		if err != nil || parsed < 0 {
			httputil.Error(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filters.Offset = parsed
	}

	incidents, err := h.service.ListIncidents(r.Context(), filters)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, incidentErrorMappings)
		return
	}
	if incidents == nil {
		incidents = make([]*domain.Incident, 0)
	}
	httputil.Success(w, http.StatusOK, incidents)
}

// GetAuditTrail handles GET /incidents/{id}/audit request.
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.GetAuditTrail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, incidentErrorMappings)
		return
	}
	if entries == nil {
		entries = make([]*domain.AuditEntry, 0)
	}
	httputil.Success(w, http.StatusOK, entries)
}

// GetClosureReadiness handles GET /incidents/{id}/closure-readiness request.
func (h *Handler) GetClosureReadiness(w http.ResponseWriter, r *http.Request) {
	readiness, err := h.service.EvaluateClosureReadiness(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, incidentErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, readiness)
}

// TransitionRequest represents the request body for a status transition.
type TransitionRequest struct {
	Target         string `json:"target" validate:"required"`
	Reason         string `json:"reason"`
	InvestigatorID string `json:"investigator_id"`
	ApproverID     string `json:"approver_id"`
}

// ProposeTransition handles POST /incidents/{id}/transition request.
func (h *Handler) ProposeTransition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	target := domain.IncidentStatus(req.Target)
	if !target.IsValid() {
		httputil.Error(w, http.StatusBadRequest, "invalid target status")
		return
	}

	incident, err := h.service.ProposeTransition(r.Context(), TransitionInput{
		IncidentID:     chi.URLParam(r, "id"),
		ActorID:        httputil.GetUserID(r.Context()),
		Target:         target,
		Reason:         req.Reason,
		InvestigatorID: req.InvestigatorID,
		ApproverID:     req.ApproverID,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, incidentErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// ManagerDecisionRequest represents the department manager's verdict on a
// screened incident.
type ManagerDecisionRequest struct {
	Approve        bool   `json:"approve"`
	Reason         string `json:"reason"`
	InvestigatorID string `json:"investigator_id"`
}

// ManagerDecision handles POST /incidents/{id}/manager-decision request.
func (h *Handler) ManagerDecision(w http.ResponseWriter, r *http.Request) {
	var req ManagerDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	incident, err := h.service.ManagerApproveOrReject(
		r.Context(),
		chi.URLParam(r, "id"),
		httputil.GetUserID(r.Context()),
		req.Approve,
		req.Reason,
		req.InvestigatorID,
	)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, incidentErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// ReporterResponseRequest represents the reporter's response to a rejection.
type ReporterResponseRequest struct {
	Action   string `json:"action" validate:"required,oneof=confirm dispute"`
	Category string `json:"category" validate:"omitempty,oneof=investigation_scope findings_accuracy timeline other"`
	Notes    string `json:"notes"`
}

// ReporterResponse handles POST /incidents/{id}/reporter-response request.
func (h *Handler) ReporterResponse(w http.ResponseWriter, r *http.Request) {
	var req ReporterResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.ReporterRespondToRejection(
		r.Context(),
		chi.URLParam(r, "id"),
		httputil.GetUserID(r.Context()),
		ReporterAction(req.Action),
		domain.DisputeCategory(req.Category),
		req.Notes,
	)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, incidentErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// FindingsRequest represents the request body for recording investigation
// findings.
type FindingsRequest struct {
	RootCause              string `json:"root_cause"`
	ImmediateCause         string `json:"immediate_cause"`
	ActionsCompleted       bool   `json:"actions_completed"`
	ActionsVerified        bool   `json:"actions_verified"`
	HSSEValidated          bool   `json:"hsse_validated"`
	ViolationIdentified    bool   `json:"violation_identified"`
	ViolationType          string `json:"violation_type"`
	ContractorID           string `json:"contractor_id"`
	ContractorContribution int    `json:"contractor_contribution" validate:"min=0,max=100"`
	EvidenceSummary        string `json:"evidence_summary"`
}

// RecordFindings handles PUT /incidents/{id}/findings request.
func (h *Handler) RecordFindings(w http.ResponseWriter, r *http.Request) {
	var req FindingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	investigation, err := h.service.RecordFindings(
		r.Context(),
		chi.URLParam(r, "id"),
		httputil.GetUserID(r.Context()),
		FindingsInput{
			RootCause:              req.RootCause,
			ImmediateCause:         req.ImmediateCause,
			ActionsCompleted:       req.ActionsCompleted,
			ActionsVerified:        req.ActionsVerified,
			HSSEValidated:          req.HSSEValidated,
			ViolationIdentified:    req.ViolationIdentified,
			ViolationType:          req.ViolationType,
			ContractorID:           req.ContractorID,
			ContractorContribution: req.ContractorContribution,
			EvidenceSummary:        req.EvidenceSummary,
		},
	)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, incidentErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, investigation)
}

// SubmitInvestigation handles POST /incidents/{id}/submit-investigation request.
func (h *Handler) SubmitInvestigation(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.SubmitInvestigation(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, incidentErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// CloseRequest represents the request body for closing an incident.
type CloseRequest struct {
	Justification string `json:"justification"`
}

// CloseIncident handles POST /incidents/{id}/close request.
func (h *Handler) CloseIncident(w http.ResponseWriter, r *http.Request) {
	var req CloseRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	incident, err := h.service.CloseIncident(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()), req.Justification)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, incidentErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// CloseOnSpotRequest represents the request body for on-the-spot closure.
type CloseOnSpotRequest struct {
	EvidencePhotos []EvidencePhotoRequest `json:"evidence_photos" validate:"omitempty,dive"`
}

// CloseOnSpot handles POST /incidents/{id}/close-on-spot request.
func (h *Handler) CloseOnSpot(w http.ResponseWriter, r *http.Request) {
	var req CloseOnSpotRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		if err := h.validator.Struct(req); err != nil {
			httputil.ValidationError(w, err)
			return
		}
	}

	var photos []domain.EvidencePhoto
	for _, photo := range req.EvidencePhotos {
		photos = append(photos, photo.ToDomain())
	}

	incident, err := h.service.CloseOnSpot(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()), photos)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, incidentErrorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// DeleteIncident handles DELETE /incidents/{id} request.
func (h *Handler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteIncident(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context())); err != nil {
		httputil.HandleError(r.Context(), w, err, incidentErrorMappings)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
