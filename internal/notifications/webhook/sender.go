// Package webhook provides notification delivery via outbound HTTP
// webhooks.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/safetrack-io/safetrack/internal/domain"
	"github.com/safetrack-io/safetrack/internal/notifications"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultRateLimit = 10 // requests per second across all targets
)

// Config holds webhook sender configuration. The target URL is stored
// per channel, so global configuration is minimal.
type Config struct {
	Timeout   time.Duration
	RateLimit float64
	UserAgent string
}

// Sender implements webhook notification delivery.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSender creates a new webhook sender.
func NewSender(config Config) *Sender {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.UserAgent == "" {
		config.UserAgent = "safetrack-notifier"
	}

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeWebhook
}

type webhookPayload struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Send posts the notification to the channel's webhook URL.
// notification.To contains the URL.
func (s *Sender) Send(ctx context.Context, notification notifications.Notification) error {
	if notification.To == "" {
		return notifications.NewNonRetryableError(fmt.Errorf("webhook URL is empty"))
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return notifications.NewRetryableError(fmt.Errorf("rate limiter: %w", err))
	}

	body, err := json.Marshal(webhookPayload{
		Subject: notification.Subject,
		Body:    notification.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notification.To, bytes.NewReader(body))
	if err != nil {
		return notifications.NewNonRetryableError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return notifications.NewRetryableError(fmt.Errorf("send request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(resp, notification.To)
}

func (s *Sender) handleResponse(resp *http.Response, webhookURL string) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		slog.Debug("webhook delivered", "url", maskURL(webhookURL))
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return notifications.NewRetryableError(fmt.Errorf("rate limited by receiver"))

	case resp.StatusCode >= 500:
		return notifications.NewRetryableError(fmt.Errorf("server error %d: %s", resp.StatusCode, string(body)))

	default:
		// 4xx: the receiver rejected the payload or the URL is stale.
		return notifications.NewNonRetryableError(fmt.Errorf("rejected with status %d: %s", resp.StatusCode, string(body)))
	}
}

// maskURL hides part of the URL for logging.
func maskURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}
