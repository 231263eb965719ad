package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type PaymentUpdater interface {
	UpdatePaymentStatus(ctx context.Context, number string, status models.PaymentStatus, intentID string) (*models.Booking, error)
}

// PaymentConsumer applies payment results to bookings. A message is
// committed once handled, or once it is known it can never be handled.
type PaymentConsumer struct {
	reader   MessageReader
	updater  PaymentUpdater
	logger   *logger.Logger
	attempts int
	backoff  time.Duration
}

func NewPaymentConsumer(brokers []string, topic, groupID string, updater PaymentUpdater, log *logger.Logger) *PaymentConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return newPaymentConsumer(reader, updater, log)
}

func newPaymentConsumer(reader MessageReader, updater PaymentUpdater, log *logger.Logger) *PaymentConsumer {
	return &PaymentConsumer{reader: reader, updater: updater, logger: log, attempts: 3, backoff: time.Second}
}

// Run consumes until ctx is cancelled.
func (c *PaymentConsumer) Run(ctx context.Context) error {
	c.logger.LogProcess("PAYMENT_CONSUMER", "started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.LogKafka("FETCH_FAILED", msg.Topic, err.Error())
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}

		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.LogKafka("COMMIT_FAILED", msg.Topic, err.Error())
		}
	}
}

func (c *PaymentConsumer) handle(ctx context.Context, msg kafka.Message) {
	var result models.PaymentResult
	if err := json.Unmarshal(msg.Value, &result); err != nil {
		c.logger.LogKafka("BAD_MESSAGE", msg.Topic, fmt.Sprintf("offset=%d: %v", msg.Offset, err))
		return
	}

	for attempt := 1; attempt <= c.attempts; attempt++ {
		_, err := c.updater.UpdatePaymentStatus(ctx, result.BookingNumber, result.Status, result.PaymentIntentID)
		if err == nil {
			c.logger.LogKafka("PAYMENT_APPLIED", msg.Topic, fmt.Sprintf("booking=%s status=%s", result.BookingNumber, result.Status))
			return
		}
		if permanent(err) {
			c.logger.LogKafka("PAYMENT_REJECTED", msg.Topic, fmt.Sprintf("booking=%s: %v", result.BookingNumber, err))
			return
		}
		c.logger.LogKafka("PAYMENT_RETRY", msg.Topic, fmt.Sprintf("booking=%s attempt=%d: %v", result.BookingNumber, attempt, err))
		if !sleep(ctx, c.backoff) {
			return
		}
	}
	c.logger.Error("KAFKA", fmt.Sprintf("giving up on payment result for booking %s", result.BookingNumber))
}

func permanent(err error) bool {
	return errors.Is(err, models.ErrBookingNotFound) ||
		errors.Is(err, models.ErrInvalidPaymentStatus) ||
		errors.Is(err, models.ErrIllegalTransition) ||
		errors.Is(err, models.ErrAlreadyHandled)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *PaymentConsumer) Close() error {
	return c.reader.Close()
}
