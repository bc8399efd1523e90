package notifications

import (
	"context"
	"fmt"

	"github.com/safetrack-io/safetrack/internal/domain"
)

// Notification is a rendered message ready for delivery.
type Notification struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a rendered notification over one channel type.
type Sender interface {
	Type() domain.ChannelType
	Send(ctx context.Context, notification Notification) error
}

// Dispatcher routes notifications to the sender matching the channel
// type.
type Dispatcher struct {
	senders map[domain.ChannelType]Sender
}

// NewDispatcher creates a new notification dispatcher.
func NewDispatcher(senders ...Sender) *Dispatcher {
	senderMap := make(map[domain.ChannelType]Sender)
	for _, s := range senders {
		senderMap[s.Type()] = s
	}
	return &Dispatcher{senders: senderMap}
}

// SendToChannel delivers a notification via the sender for the given
// channel type.
func (d *Dispatcher) SendToChannel(ctx context.Context, channelType domain.ChannelType, notification Notification) error {
	sender, ok := d.senders[channelType]
	if !ok {
		return NewNonRetryableError(fmt.Errorf("no sender for channel type %s", channelType))
	}
	return sender.Send(ctx, notification)
}
