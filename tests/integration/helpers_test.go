//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/safetrack-io/safetrack/internal/domain"
	"github.com/safetrack-io/safetrack/internal/testutil"
)

const testPassword = "s3cret-passw0rd"

// testUser is a registered account with an authenticated client.
type testUser struct {
	Client   *testutil.Client
	ID       string
	Email    string
	TenantID string
}

func newTestClient(t *testing.T) *testutil.Client {
	t.Helper()
	c := testutil.NewClientWithValidator(testServer.URL, openAPIValidator)
	c.SetT(t)
	return c
}

// newUser registers a fresh account, grants it the given roles directly in
// the database (role assignment normally requires an admin), and logs it in
// so the issued token carries the final role set.
func newUser(t *testing.T, tenantID, departmentID string, roles ...domain.Role) *testUser {
	t.Helper()

	email := testutil.RandomEmail()
	c := newTestClient(t)
	c.RegisterUser(t, tenantID, email, testPassword, "Integration User")

	if len(roles) > 0 || departmentID != "" {
		grantRoles(t, tenantID, email, departmentID, roles...)
	}
	c.LoginAs(t, tenantID, email, testPassword)

	resp, err := c.GET("/api/v1/me")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decodeData[struct {
		ID string `json:"id"`
	}](t, resp)

	return &testUser{Client: c, ID: me.ID, Email: email, TenantID: tenantID}
}

func grantRoles(t *testing.T, tenantID, email, departmentID string, roles ...domain.Role) {
	t.Helper()

	roleStrings := make([]string, 0, len(roles)+1)
	roleStrings = append(roleStrings, string(domain.RoleEmployee))
	for _, r := range roles {
		roleStrings = append(roleStrings, string(r))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := testDB.Exec(ctx,
		`UPDATE users SET roles = $1, department_id = $2 WHERE tenant_id = $3 AND email = $4`,
		roleStrings, departmentID, tenantID, email)
	require.NoError(t, err)
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &envelope)
	return envelope.Data
}

func decodeIncident(t *testing.T, resp *http.Response, wantStatus int) *domain.Incident {
	t.Helper()
	if resp.StatusCode != wantStatus {
		t.Fatalf("unexpected status %d (want %d): %s", resp.StatusCode, wantStatus, testutil.ReadBody(t, resp))
	}
	incident := decodeData[domain.Incident](t, resp)
	return &incident
}

// workflowFixture bundles the cast of a typical incident lifecycle inside
// one isolated tenant.
type workflowFixture struct {
	Tenant       string
	DepartmentID string

	Reporter     *testUser
	Expert       *testUser
	Manager      *testUser
	Investigator *testUser
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	tenant := testutil.RandomSlug("tenant")
	dept := testutil.RandomSlug("dept")
	return &workflowFixture{
		Tenant:       tenant,
		DepartmentID: dept,
		Reporter:     newUser(t, tenant, dept),
		Expert:       newUser(t, tenant, dept, domain.RoleHSSEExpert),
		Manager:      newUser(t, tenant, dept, domain.RoleDepartmentManager),
		Investigator: newUser(t, tenant, dept, domain.RoleInvestigator),
	}
}

func (f *workflowFixture) report(t *testing.T, category string, severity int) *domain.Incident {
	t.Helper()
	resp, err := f.Reporter.Client.POST("/api/v1/incidents", map[string]any{
		"title":         "Ladder left unsecured on scaffold",
		"description":   "Found during the morning walkaround.",
		"category":      category,
		"severity":      severity,
		"department_id": f.DepartmentID,
		"occurred_at":   time.Now().UTC().Format(time.RFC3339),
	})
	require.NoError(t, err)
	return decodeIncident(t, resp, http.StatusCreated)
}

func (f *workflowFixture) transition(t *testing.T, u *testUser, incidentID string, target domain.IncidentStatus, extra map[string]any) (*http.Response, error) {
	t.Helper()
	body := map[string]any{"target": string(target)}
	for k, v := range extra {
		body[k] = v
	}
	return u.Client.POST("/api/v1/incidents/"+incidentID+"/transition", body)
}

// screenAndApprove walks a submitted incident through expert screening,
// assigning the fixture manager as approver and proposing the fixture
// investigator.
func (f *workflowFixture) screenAndApprove(t *testing.T, incidentID string) *domain.Incident {
	t.Helper()

	resp, err := f.transition(t, f.Expert, incidentID, domain.StatusExpertScreening, nil)
	require.NoError(t, err)
	incident := decodeIncident(t, resp, http.StatusOK)
	require.Equal(t, domain.StatusExpertScreening, incident.Status)

	resp, err = f.transition(t, f.Expert, incidentID, domain.StatusPendingManagerApproval, map[string]any{
		"approver_id":     f.Manager.ID,
		"investigator_id": f.Investigator.ID,
	})
	require.NoError(t, err)
	return decodeIncident(t, resp, http.StatusOK)
}

// managerApprove has the assigned manager approve the incident for
// investigation, assigning the fixture investigator.
func (f *workflowFixture) managerApprove(t *testing.T, incidentID string) *domain.Incident {
	t.Helper()
	resp, err := f.Manager.Client.POST("/api/v1/incidents/"+incidentID+"/manager-decision", map[string]any{
		"approve":         true,
		"investigator_id": f.Investigator.ID,
	})
	require.NoError(t, err)
	return decodeIncident(t, resp, http.StatusOK)
}

// toInvestigation reports an incident and drives it into the
// investigation_in_progress status.
func (f *workflowFixture) toInvestigation(t *testing.T, severity int) *domain.Incident {
	t.Helper()
	incident := f.report(t, "incident", severity)
	f.screenAndApprove(t, incident.ID)
	incident = f.managerApprove(t, incident.ID)
	require.Equal(t, domain.StatusInvestigationInProgress, incident.Status)
	return incident
}

// recordFindings submits investigation findings as the assigned
// investigator, with overrides merged over a closure-ready baseline.
func (f *workflowFixture) recordFindings(t *testing.T, incidentID string, overrides map[string]any) {
	t.Helper()
	body := map[string]any{
		"root_cause":        "Anchor points were not inspected after the retrofit.",
		"immediate_cause":   "Ladder was not tied off.",
		"actions_completed": true,
		"actions_verified":  true,
		"hsse_validated":    true,
	}
	for k, v := range overrides {
		body[k] = v
	}
	resp, err := f.Investigator.Client.PUT("/api/v1/incidents/"+incidentID+"/findings", body)
	require.NoError(t, err)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("record findings: status %d: %s", resp.StatusCode, testutil.ReadBody(t, resp))
	}
	resp.Body.Close()
}

func (f *workflowFixture) submitInvestigation(t *testing.T, incidentID string) *domain.Incident {
	t.Helper()
	resp, err := f.Investigator.Client.POST("/api/v1/incidents/"+incidentID+"/submit-investigation", nil)
	require.NoError(t, err)
	return decodeIncident(t, resp, http.StatusOK)
}

func getIncident(t *testing.T, u *testUser, incidentID string) *domain.Incident {
	t.Helper()
	resp, err := u.Client.GET("/api/v1/incidents/" + incidentID)
	require.NoError(t, err)
	return decodeIncident(t, resp, http.StatusOK)
}
