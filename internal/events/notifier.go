package events

import (
	"context"
	"fmt"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// Publisher delivers one JSON encoded message to a topic or routing key.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
	Close() error
}

// Notifier turns committed domain changes into published messages. It
// satisfies the notifier hooks of the reservation store, the booking
// finalizer and the check-in gate. A failed publish is logged and dropped;
// the business change it describes has already committed.
type Notifier struct {
	publisher Publisher
	topics    config.TopicConfig
	logger    *logger.Logger
}

func NewNotifier(p Publisher, topics config.TopicConfig, log *logger.Logger) *Notifier {
	return &Notifier{publisher: p, topics: topics, logger: log}
}

func (n *Notifier) BookingCreated(ctx context.Context, ev models.BookingEvent) {
	n.publish(ctx, n.topics.BookingCreated, ev.BookingNumber, ev)
}

func (n *Notifier) BookingConfirmed(ctx context.Context, ev models.BookingEvent) {
	n.publish(ctx, n.topics.BookingConfirmed, ev.BookingNumber, ev)
}

func (n *Notifier) BookingCancelled(ctx context.Context, ev models.BookingEvent) {
	n.publish(ctx, n.topics.BookingCancelled, ev.BookingNumber, ev)
}

func (n *Notifier) ReservationExpired(ctx context.Context, ev models.ReservationEvent) {
	n.publish(ctx, n.topics.ReservationExpired, ev.ReservationID, ev)
}

func (n *Notifier) CheckedIn(ctx context.Context, ev models.CheckInEvent) {
	n.publish(ctx, n.topics.TicketCheckedIn, ev.TicketCode, ev)
}

func (n *Notifier) publish(ctx context.Context, topic, key string, payload any) {
	if err := n.publisher.Publish(context.WithoutCancel(ctx), topic, key, payload); err != nil {
		n.logger.LogKafka("PUBLISH_FAILED", topic, fmt.Sprintf("key=%s: %v", key, err))
		return
	}
	n.logger.LogKafka("PUBLISH", topic, "key="+key)
}

// NopPublisher discards everything.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }

func (NopPublisher) Close() error { return nil }
