//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safetrack-io/safetrack/internal/notifications"
	"github.com/safetrack-io/safetrack/internal/notifications/email"
)

// TestEmailDeliveryE2E exercises the SMTP sender against a real Mailpit
// inbox, bypassing the queue so delivery itself is what is under test.
func TestEmailDeliveryE2E(t *testing.T) {
	client := NewMailpitClient(mailpit.APIHost, mailpit.APIPort)
	require.NoError(t, client.DeleteAllMessages())

	sender, err := email.NewSender(email.Config{
		Enabled:     true,
		SMTPHost:    mailpit.SMTPHost,
		SMTPPort:    mailpit.SMTPPort,
		FromAddress: "SafeTrack <no-reply@safetrack.test>",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err = sender.Send(ctx, notifications.Notification{
		To:      "supervisor@example.test",
		Subject: "Incident INC-42 escalated",
		Body:    "Incident INC-42 breached its response window and was escalated.",
	})
	require.NoError(t, err)

	messages, err := client.WaitForMessages(1, 10*time.Second)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	assert.Equal(t, "Incident INC-42 escalated", messages[0].Subject)
	require.NotEmpty(t, messages[0].AllRecipients())
	assert.Equal(t, "supervisor@example.test", messages[0].AllRecipients()[0].Address)
	assert.Equal(t, "no-reply@safetrack.test", messages[0].From.Address)

	full, err := client.GetMessageByID(messages[0].ID)
	require.NoError(t, err)
	assert.Contains(t, full.Text, "breached its response window")
}

// TestEmailSenderDisabled verifies the disabled sender is a silent no-op
// rather than an error, so a bare deployment never fails deliveries.
func TestEmailSenderDisabled(t *testing.T) {
	client := NewMailpitClient(mailpit.APIHost, mailpit.APIPort)
	require.NoError(t, client.DeleteAllMessages())

	sender, err := email.NewSender(email.Config{Enabled: false})
	require.NoError(t, err)

	err = sender.Send(context.Background(), notifications.Notification{
		To:      "nobody@example.test",
		Subject: "should not be delivered",
		Body:    "silence",
	})
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)
	count, err := client.MessageCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}
