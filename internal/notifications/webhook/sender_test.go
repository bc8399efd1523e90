package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safetrack-io/safetrack/internal/domain"
	"github.com/safetrack-io/safetrack/internal/notifications"
)

func TestNewSender_Defaults(t *testing.T) {
	sender := NewSender(Config{})

	assert.Equal(t, defaultTimeout, sender.config.Timeout)
	assert.Equal(t, float64(defaultRateLimit), sender.config.RateLimit)
	assert.Equal(t, "safetrack-notifier", sender.config.UserAgent)
	assert.NotNil(t, sender.httpClient)
}

func TestNewSender_CustomConfig(t *testing.T) {
	config := Config{
		Timeout:   30 * time.Second,
		RateLimit: 2,
		UserAgent: "custom-agent",
	}

	sender := NewSender(config)

	assert.Equal(t, 30*time.Second, sender.config.Timeout)
	assert.Equal(t, float64(2), sender.config.RateLimit)
	assert.Equal(t, "custom-agent", sender.config.UserAgent)
}

func TestSender_Type(t *testing.T) {
	sender := NewSender(Config{})
	assert.Equal(t, domain.ChannelTypeWebhook, sender.Type())
}

func TestSender_Send_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "safetrack-notifier", r.Header.Get("User-Agent"))

		var payload webhookPayload
		err := json.NewDecoder(r.Body).Decode(&payload)
		require.NoError(t, err)
		assert.Equal(t, "[SLA Breach] Incident Approval inc-1", payload.Subject)
		assert.Equal(t, "escalation body", payload.Body)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewSender(Config{})
	err := sender.Send(context.Background(), notifications.Notification{
		To:      server.URL,
		Subject: "[SLA Breach] Incident Approval inc-1",
		Body:    "escalation body",
	})

	assert.NoError(t, err)
}

func TestSender_Send_EmptyURL(t *testing.T) {
	sender := NewSender(Config{})
	err := sender.Send(context.Background(), notifications.Notification{Body: "hello"})

	require.Error(t, err)
	var retryable *notifications.RetryableError
	require.ErrorAs(t, err, &retryable)
	assert.False(t, retryable.IsRetryable())
}

func TestSender_Send_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sender := NewSender(Config{})
	err := sender.Send(context.Background(), notifications.Notification{To: server.URL, Body: "x"})

	var retryable *notifications.RetryableError
	require.ErrorAs(t, err, &retryable)
	assert.True(t, retryable.IsRetryable())
}

func TestSender_Send_RateLimitedIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	sender := NewSender(Config{})
	err := sender.Send(context.Background(), notifications.Notification{To: server.URL, Body: "x"})

	var retryable *notifications.RetryableError
	require.ErrorAs(t, err, &retryable)
	assert.True(t, retryable.IsRetryable())
}

func TestSender_Send_ClientErrorIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	sender := NewSender(Config{})
	err := sender.Send(context.Background(), notifications.Notification{To: server.URL, Body: "x"})

	var retryable *notifications.RetryableError
	require.ErrorAs(t, err, &retryable)
	assert.False(t, retryable.IsRetryable())
}

func TestSender_Send_ConnectionErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // refuse connections

	sender := NewSender(Config{})
	err := sender.Send(context.Background(), notifications.Notification{To: server.URL, Body: "x"})

	var retryable *notifications.RetryableError
	require.ErrorAs(t, err, &retryable)
	assert.True(t, retryable.IsRetryable())
}

func TestMaskURL(t *testing.T) {
	short := "https://h.example.com/x"
	assert.Equal(t, short, maskURL(short))

	long := "https://hooks.example.com/services/T00000000/B00000000/XXXXXXXXXXXXXXXXXXXXXXXX"
	masked := maskURL(long)
	assert.NotEqual(t, long, masked)
	assert.Contains(t, masked, "...")
}
