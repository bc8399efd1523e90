package disputes

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safetrack-io/safetrack/internal/domain"
	"github.com/safetrack-io/safetrack/internal/rolegate"
)

// stubTx satisfies pgx.Tx for unit tests.
type stubTx struct {
	committed bool
}

func (t *stubTx) Begin(_ context.Context) (pgx.Tx, error) { return t, nil }

func (t *stubTx) Commit(_ context.Context) error {
	t.committed = true
	return nil
}

func (t *stubTx) Rollback(_ context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	return nil
}

func (t *stubTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *stubTx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }
func (t *stubTx) LargeObjects() pgx.LargeObjects                             { return pgx.LargeObjects{} }
func (t *stubTx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *stubTx) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *stubTx) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) { return nil, nil }
func (t *stubTx) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row        { return nil }
func (t *stubTx) Conn() *pgx.Conn                                               { return nil }

// mockRepository implements Repository for testing.
type mockRepository struct {
	incidents            map[string]*domain.Incident
	disputes             []*domain.Dispute
	audit                []*domain.AuditEntry
	activeInvestigations map[string]bool
	nextID               int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		incidents:            make(map[string]*domain.Incident),
		activeInvestigations: make(map[string]bool),
	}
}

func (m *mockRepository) GetDispute(_ context.Context, id string) (*domain.Dispute, error) {
	for _, d := range m.disputes {
		if d.ID == id {
			cp := *d
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockRepository) GetOpenDispute(_ context.Context, incidentID string) (*domain.Dispute, error) {
	for _, d := range m.disputes {
		if d.IncidentID == incidentID && d.Status == domain.DisputeOpen {
			cp := *d
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockRepository) ListDisputesByIncident(_ context.Context, incidentID string) ([]*domain.Dispute, error) {
	var out []*domain.Dispute
	for _, d := range m.disputes {
		if d.IncidentID == incidentID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepository) GetIncident(_ context.Context, id string) (*domain.Incident, error) {
	incident, ok := m.incidents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *incident
	return &cp, nil
}

func (m *mockRepository) HasActiveInvestigation(_ context.Context, incidentID string) (bool, error) {
	return m.activeInvestigations[incidentID], nil
}

func (m *mockRepository) BeginTx(_ context.Context) (pgx.Tx, error) {
	return &stubTx{}, nil
}

func (m *mockRepository) CreateInvestigationTx(_ context.Context, _ pgx.Tx, investigation *domain.Investigation) error {
	m.nextID++
	investigation.ID = fmt.Sprintf("inv-%d", m.nextID)
	m.activeInvestigations[investigation.IncidentID] = true
	return nil
}

func (m *mockRepository) CreateDisputeTx(_ context.Context, _ pgx.Tx, d *domain.Dispute) error {
	m.nextID++
	d.ID = fmt.Sprintf("disp-%d", m.nextID)
	cp := *d
	m.disputes = append(m.disputes, &cp)
	return nil
}

func (m *mockRepository) ResolveDisputeTx(_ context.Context, _ pgx.Tx, d *domain.Dispute) error {
	for i, stored := range m.disputes {
		if stored.ID == d.ID && stored.Status == domain.DisputeOpen {
			cp := *d
			m.disputes[i] = &cp
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockRepository) UpdateIncidentStatusTx(_ context.Context, _ pgx.Tx, incident *domain.Incident, expectedVersion int) error {
	stored, ok := m.incidents[incident.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return domain.ErrStaleVersion
	}
	cp := *incident
	cp.Version = expectedVersion + 1
	m.incidents[incident.ID] = &cp
	return nil
}

func (m *mockRepository) CreateAuditEntryTx(_ context.Context, _ pgx.Tx, entry *domain.AuditEntry) error {
	m.nextID++
	entry.ID = fmt.Sprintf("audit-%d", m.nextID)
	entry.CreatedAt = time.Now()
	m.audit = append(m.audit, entry)
	return nil
}

// mockDirectory implements Directory for testing.
type mockDirectory struct {
	actors map[string]domain.Actor
}

func (m *mockDirectory) GetActor(_ context.Context, actorID string) (domain.Actor, error) {
	actor, ok := m.actors[actorID]
	if !ok {
		return domain.Actor{}, domain.ErrNotFound
	}
	return actor, nil
}

const (
	reporterID     = "user-reporter"
	investigatorID = "user-investigator"
	mediatorID     = "user-hsse-manager"
)

func newTestService(t *testing.T) (*Service, *mockRepository) {
	t.Helper()
	gate, err := rolegate.New()
	require.NoError(t, err)

	repo := newMockRepository()
	directory := &mockDirectory{actors: map[string]domain.Actor{
		reporterID:     {ID: reporterID, Name: "Rita Reporter", Roles: []domain.Role{domain.RoleEmployee}},
		investigatorID: {ID: investigatorID, Name: "Ivan Investigator", Roles: []domain.Role{domain.RoleInvestigator}},
		mediatorID:     {ID: mediatorID, Name: "Hanna HSSE", Roles: []domain.Role{domain.RoleHSSEManager}},
	}}
	return NewService(repo, gate, directory, nil), repo
}

func seedIncident(repo *mockRepository, status domain.IncidentStatus) *domain.Incident {
	invID := investigatorID
	incident := &domain.Incident{
		ID:              "inc-1",
		TenantID:        "tenant-1",
		Title:           "Crane operated without banksman",
		Category:        domain.CategoryIncident,
		Severity:        domain.SeverityLevel3,
		Status:          status,
		ReporterID:      reporterID,
		InvestigatorID:  &invID,
		DepartmentID:    "dept-1",
		StatusChangedAt: time.Now().Add(-time.Hour),
	}
	repo.incidents[incident.ID] = incident
	return incident
}

func seedOpenDispute(repo *mockRepository, incidentID string, origin domain.IncidentStatus) *domain.Dispute {
	repo.nextID++
	d := &domain.Dispute{
		ID:           fmt.Sprintf("disp-%d", repo.nextID),
		IncidentID:   incidentID,
		TenantID:     "tenant-1",
		Category:     domain.DisputeFindingsAccuracy,
		Reason:       "the findings misattribute the root cause",
		OriginStatus: origin,
		OpenedBy:     investigatorID,
		Status:       domain.DisputeOpen,
		OpenedAt:     time.Now().Add(-time.Minute),
	}
	repo.disputes = append(repo.disputes, d)
	return d
}

func TestOpen_InvestigatorDispute(t *testing.T) {
	service, repo := newTestService(t)
	incident := seedIncident(repo, domain.StatusManagerRejected)

	dispute, err := service.Open(context.Background(), OpenDisputeInput{
		IncidentID:   incident.ID,
		ActorID:      investigatorID,
		Category:     domain.DisputeFindingsAccuracy,
		Reason:       "rejection ignores the witness statements",
		EvidenceRefs: []string{"docs/statement-1.pdf", "docs/statement-2.pdf"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DisputeOpen, dispute.Status)
	assert.Equal(t, domain.StatusManagerRejected, dispute.OriginStatus)
	assert.Equal(t, []string{"docs/statement-1.pdf", "docs/statement-2.pdf"}, dispute.EvidenceRefs)
	assert.Equal(t, domain.StatusDisputeResolution, repo.incidents[incident.ID].Status)
	require.Len(t, repo.audit, 1)
}

func TestOpen_ReporterDispute(t *testing.T) {
	service, repo := newTestService(t)
	incident := seedIncident(repo, domain.StatusRejectedByExpert)

	dispute, err := service.OpenForReporter(context.Background(), incident.ID, reporterID, domain.DisputeOther, "the expert never looked at the photos")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusRejectedByExpert, dispute.OriginStatus)
	assert.Equal(t, domain.StatusDisputeResolution, repo.incidents[incident.ID].Status)
}

func TestOpen_Guards(t *testing.T) {
	t.Run("only one open dispute per incident", func(t *testing.T) {
		service, repo := newTestService(t)
		incident := seedIncident(repo, domain.StatusManagerRejected)
		seedOpenDispute(repo, incident.ID, domain.StatusManagerRejected)

		_, err := service.Open(context.Background(), OpenDisputeInput{
			IncidentID: incident.ID,
			ActorID:    investigatorID,
			Category:   domain.DisputeTimeline,
			Reason:     "the rejection came after the deadline",
		})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("incident must be in a rejection state", func(t *testing.T) {
		service, repo := newTestService(t)
		incident := seedIncident(repo, domain.StatusInvestigationInProgress)

		_, err := service.Open(context.Background(), OpenDisputeInput{
			IncidentID: incident.ID,
			ActorID:    investigatorID,
			Category:   domain.DisputeTimeline,
			Reason:     "disagreeing with an ongoing investigation",
		})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("reason below minimum length", func(t *testing.T) {
		service, repo := newTestService(t)
		incident := seedIncident(repo, domain.StatusManagerRejected)

		_, err := service.Open(context.Background(), OpenDisputeInput{
			IncidentID: incident.ID,
			ActorID:    investigatorID,
			Category:   domain.DisputeTimeline,
			Reason:     "unfair",
		})
		assert.ErrorIs(t, err, domain.ErrMissingJustification)
	})

	t.Run("only the assigned investigator", func(t *testing.T) {
		service, repo := newTestService(t)
		incident := seedIncident(repo, domain.StatusManagerRejected)
		other := "user-other"
		incident.InvestigatorID = &other

		_, err := service.Open(context.Background(), OpenDisputeInput{
			IncidentID: incident.ID,
			ActorID:    investigatorID,
			Category:   domain.DisputeTimeline,
			Reason:     "the rejection ignores the evidence",
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestResolve_OverrideRejection(t *testing.T) {
	service, repo := newTestService(t)
	incident := seedIncident(repo, domain.StatusDisputeResolution)
	dispute := seedOpenDispute(repo, incident.ID, domain.StatusManagerRejected)

	resolved, err := service.Resolve(context.Background(), incident.ID, mediatorID, domain.DecisionOverrideRejection, "rejection was based on an outdated report")
	require.NoError(t, err)

	assert.Equal(t, domain.DisputeResolved, resolved.Status)
	assert.Equal(t, dispute.ID, resolved.ID)
	require.NotNil(t, resolved.MediatorID)
	assert.Equal(t, mediatorID, *resolved.MediatorID)
	assert.NotNil(t, resolved.ResolvedAt)

	updated := repo.incidents[incident.ID]
	assert.Equal(t, domain.StatusPendingClosure, updated.Status)
	assert.False(t, updated.ReworkRequired)
}

func TestResolve_MaintainRejection(t *testing.T) {
	service, repo := newTestService(t)
	incident := seedIncident(repo, domain.StatusDisputeResolution)
	seedOpenDispute(repo, incident.ID, domain.StatusManagerRejected)

	_, err := service.Resolve(context.Background(), incident.ID, mediatorID, domain.DecisionMaintainRejection, "manager's concerns are valid, full rework needed")
	require.NoError(t, err)

	updated := repo.incidents[incident.ID]
	assert.Equal(t, domain.StatusInvestigationInProgress, updated.Status)
	assert.False(t, updated.ReworkRequired)
}

func TestResolve_PartialRework(t *testing.T) {
	service, repo := newTestService(t)
	incident := seedIncident(repo, domain.StatusDisputeResolution)
	seedOpenDispute(repo, incident.ID, domain.StatusManagerRejected)

	_, err := service.Resolve(context.Background(), incident.ID, mediatorID, domain.DecisionPartialRework, "redo the corrective action verification only")
	require.NoError(t, err)

	updated := repo.incidents[incident.ID]
	assert.Equal(t, domain.StatusInvestigationInProgress, updated.Status)
	assert.True(t, updated.ReworkRequired, "partial rework is flagged on the incident")
}

func TestResolve_ReporterOriginRouting(t *testing.T) {
	t.Run("override returns to screening", func(t *testing.T) {
		service, repo := newTestService(t)
		incident := seedIncident(repo, domain.StatusDisputeResolution)
		seedOpenDispute(repo, incident.ID, domain.StatusRejectedByExpert)

		_, err := service.Resolve(context.Background(), incident.ID, mediatorID, domain.DecisionOverrideRejection, "the screening missed the attached evidence")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusExpertScreening, repo.incidents[incident.ID].Status)
	})

	t.Run("maintain confirms the rejection", func(t *testing.T) {
		service, repo := newTestService(t)
		incident := seedIncident(repo, domain.StatusDisputeResolution)
		seedOpenDispute(repo, incident.ID, domain.StatusRejectedByExpert)

		_, err := service.Resolve(context.Background(), incident.ID, mediatorID, domain.DecisionMaintainRejection, "screening decision stands, out of scope")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusClosedRejected, repo.incidents[incident.ID].Status)
	})
}

func TestResolve_Guards(t *testing.T) {
	t.Run("only a mediator may resolve", func(t *testing.T) {
		service, repo := newTestService(t)
		incident := seedIncident(repo, domain.StatusDisputeResolution)
		seedOpenDispute(repo, incident.ID, domain.StatusManagerRejected)

		_, err := service.Resolve(context.Background(), incident.ID, investigatorID, domain.DecisionOverrideRejection, "resolving my own dispute in my favor")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("notes are mandatory", func(t *testing.T) {
		service, repo := newTestService(t)
		incident := seedIncident(repo, domain.StatusDisputeResolution)
		seedOpenDispute(repo, incident.ID, domain.StatusManagerRejected)

		_, err := service.Resolve(context.Background(), incident.ID, mediatorID, domain.DecisionOverrideRejection, "ok")
		assert.ErrorIs(t, err, domain.ErrMissingJustification)
	})

	t.Run("no open dispute", func(t *testing.T) {
		service, repo := newTestService(t)
		incident := seedIncident(repo, domain.StatusDisputeResolution)

		_, err := service.Resolve(context.Background(), incident.ID, mediatorID, domain.DecisionOverrideRejection, "nothing to resolve here at all")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
