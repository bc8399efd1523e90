package notifications

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_TransitionPayload(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	payload := NewTransitionPayload("tenant-1", TransitionData{
		IncidentID: "inc-1",
		Title:      "Forklift near miss",
		Category:   "near_miss",
		Severity:   "level_3",
		FromStatus: "submitted",
		ToStatus:   "expert_screening",
		ActorName:  "Dana Reyes",
		Reason:     "meets screening criteria",
	})

	subject, body, err := renderer.Render(payload)
	require.NoError(t, err)

	assert.Equal(t, "[Expert Screening] Forklift near miss", subject)
	assert.Contains(t, body, "Incident: Forklift near miss")
	assert.Contains(t, body, "Category: Near Miss (level_3)")
	assert.Contains(t, body, "Status: Submitted -> Expert Screening")
	assert.Contains(t, body, "By: Dana Reyes")
	assert.Contains(t, body, "Reason: meets screening criteria")
}

func TestRenderer_TransitionWithoutReasonOmitsLine(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	payload := NewTransitionPayload("tenant-1", TransitionData{
		Title:      "Spill in bay 4",
		Category:   "incident",
		Severity:   "level_2",
		FromStatus: "submitted",
		ToStatus:   "expert_screening",
		ActorName:  "Dana Reyes",
	})

	_, body, err := renderer.Render(payload)
	require.NoError(t, err)
	assert.NotContains(t, body, "Reason:")
}

func TestRenderer_EscalationPayload(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	triggeredAt := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	payload := NewEscalationPayload("tenant-1", EscalationData{
		EventID:     "evt-1",
		SubjectID:   "inc-7",
		Category:    "incident_approval",
		Priority:    "level_4",
		Level:       2,
		TriggeredAt: triggeredAt,
	})

	subject, body, err := renderer.Render(payload)
	require.NoError(t, err)

	assert.Equal(t, "[SLA Escalation] Incident Approval inc-7", subject)
	assert.Contains(t, body, "SLA escalation level 2 for Incident Approval inc-7")
	assert.Contains(t, body, "Priority: level_4")
	assert.Contains(t, body, "Waiting since: Mar 15, 2026 09:30 UTC")
}

func TestRenderer_EscalationSubjectByLevel(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	tests := []struct {
		level int
		label string
	}{
		{1, "SLA Breach"},
		{2, "SLA Escalation"},
		{3, "SLA Critical"},
	}

	for _, tt := range tests {
		payload := NewEscalationPayload("tenant-1", EscalationData{
			SubjectID:   "inc-1",
			Category:    "emergency_alert",
			Level:       tt.level,
			TriggeredAt: time.Now(),
		})
		subject, _, err := renderer.Render(payload)
		require.NoError(t, err)
		assert.Contains(t, subject, tt.label, "level %d", tt.level)
	}
}

func TestRenderer_UnknownKind(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	_, _, err = renderer.Render(NotificationPayload{Kind: "unknown"})
	assert.ErrorContains(t, err, "template not found")
}
