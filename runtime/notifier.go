package runtime

import (
	"chat-delivery/contract"
	"chat-delivery/domain"
	"chat-delivery/domain/event"
	"chat-delivery/errors"
	"chat-delivery/observability"
	"chat-delivery/repositories"
	"context"
	"log/slog"
	"time"
)

// Notifier records a notification then pushes it to every live connection of
// its recipient. The durable record is what offline recipients read later.
type Notifier struct {
	pusher
	notifications repositories.INotificationRepository
	now           func() time.Time
}

func NewNotifier(
	log *slog.Logger,
	registry contract.IConnectionRegistry,
	notifications repositories.INotificationRepository,
	metrics *observability.Metrics,
	pushTimeout time.Duration,
) *Notifier {
	return &Notifier{
		pusher:        pusher{log: log, registry: registry, metrics: metrics, timeout: pushTimeout},
		notifications: notifications,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Trigger turns a social interaction into a notification of its recipient.
func (n *Notifier) Trigger(ctx context.Context, interaction domain.Interaction) (domain.Notification, bool, error) {
	notification, err := interaction.ToNotification(n.now())
	if err != nil {
		return domain.Notification{}, false, err
	}
	return n.Notify(ctx, notification)
}

// Notify reports false, without error, when the recipient is the sender.
func (n *Notifier) Notify(ctx context.Context, notification domain.Notification) (domain.Notification, bool, error) {
	if notification.RecipientID == notification.SenderID {
		return domain.Notification{}, false, nil
	}
	if !notification.RecipientID.Valid() || !notification.SenderID.Valid() || !notification.ValidReferences() {
		return domain.Notification{}, false, errors.ErrInvalidPayload
	}
	if err := n.notifications.Store(notification); err != nil {
		return domain.Notification{}, false, errors.Storage(err)
	}
	n.metrics.NotificationsCreated.WithLabelValues(string(notification.Type)).Inc()

	connections := n.registry.ConnectionsFor(notification.RecipientID)
	n.pushAll(ctx, connections, "", event.NotificationReceived{Notification: notification})
	n.log.Debug("Notification created", "recipient", notification.RecipientID,
		"type", notification.Type, "live_connections", len(connections))
	return notification, true, nil
}
