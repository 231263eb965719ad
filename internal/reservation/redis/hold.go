package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-booking/internal/logger"

	"github.com/go-redis/redis/v8"
)

const holdKeyPrefix = "reservation_hold:"

// HoldTracker mirrors each open reservation as a key that expires with it.
type HoldTracker struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewHoldTracker(client *redis.Client, log *logger.Logger) *HoldTracker {
	return &HoldTracker{Client: client, Logger: log}
}

func holdKey(token string) string {
	return holdKeyPrefix + token
}

// Track writes the hold key with the reservation's deadline as its value.
// ttl is the time left on the caller's clock; a non-positive ttl means the
// hold already ran out.
func (h *HoldTracker) Track(ctx context.Context, token string, expiresAt time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return h.Client.Set(ctx, holdKey(token), expiresAt.Unix(), ttl).Err()
}

func (h *HoldTracker) Untrack(ctx context.Context, token string) error {
	return h.Client.Del(ctx, holdKey(token)).Err()
}

// EnableExpiryEvents turns on expired-key notifications. Managed Redis
// offerings often forbid CONFIG SET; the caller then relies on the sweep.
func (h *HoldTracker) EnableExpiryEvents(ctx context.Context) error {
	return h.Client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
}

// SubscribeExpirations calls onExpire with the token of every hold key
// Redis expires, until ctx is cancelled.
func (h *HoldTracker) SubscribeExpirations(ctx context.Context, onExpire func(ctx context.Context, token string)) {
	channel := fmt.Sprintf("__keyevent@%d__:expired", h.Client.Options().DB)
	pubsub := h.Client.PSubscribe(ctx, channel)
	h.Logger.Info("REDIS", fmt.Sprintf("Subscribed to %s", channel))

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if !strings.HasPrefix(msg.Payload, holdKeyPrefix) {
					continue
				}
				token := strings.TrimPrefix(msg.Payload, holdKeyPrefix)
				onExpire(ctx, token)
			}
		}
	}()
}
