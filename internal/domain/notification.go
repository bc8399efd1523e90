package domain

import "time"

// ChannelType defines the delivery mechanism of a notification channel.
type ChannelType string

// Channel types.
const (
	ChannelTypeWebhook ChannelType = "webhook"
	ChannelTypeEmail   ChannelType = "email"
)

// IsValid checks if the channel type is valid.
func (t ChannelType) IsValid() bool {
	return t == ChannelTypeWebhook || t == ChannelTypeEmail
}

// NotificationChannel is a tenant-scoped delivery endpoint. Target holds
// the webhook URL or email address depending on Type. An empty Kinds
// list subscribes the channel to every notification kind.
type NotificationChannel struct {
	ID        string      `json:"id"`
	TenantID  string      `json:"tenant_id"`
	Name      string      `json:"name"`
	Type      ChannelType `json:"type"`
	Target    string      `json:"target"`
	IsEnabled bool        `json:"is_enabled"`
	Kinds     []string    `json:"kinds,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Subscribed reports whether the channel receives the given kind.
func (c *NotificationChannel) Subscribed(kind string) bool {
	if len(c.Kinds) == 0 {
		return true
	}
	for _, k := range c.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
