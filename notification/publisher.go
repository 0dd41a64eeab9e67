package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"goflare.io/voucher/models"
)

// Broadcast addresses every connected user.
const Broadcast int64 = 0

// Publisher pushes one event to one user's channel, or to everyone with Broadcast.
type Publisher interface {
	Publish(ctx context.Context, userID int64, event string, payload any) error
}

// Envelope is the message written to the pub/sub channel.
type Envelope struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	UserID    int64     `json:"user_id,omitempty"`
	Payload   any       `json:"payload"`
	EmittedAt time.Time `json:"emitted_at"`
}

type redisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type redisPublisher struct {
	client redisClient
	prefix string
	now    models.Clock
	logger *zap.Logger
}

// NewRedisPublisher publishes envelopes on <prefix>:user:<id> and <prefix>:broadcast.
// The socket gateway subscribes to those channels and forwards to connected clients.
func NewRedisPublisher(client *redis.Client, prefix string, clock models.Clock, logger *zap.Logger) Publisher {
	return newRedisPublisher(client, prefix, clock, logger)
}

func newRedisPublisher(client redisClient, prefix string, clock models.Clock, logger *zap.Logger) *redisPublisher {
	return &redisPublisher{
		client: client,
		prefix: prefix,
		now:    clock,
		logger: logger,
	}
}

func (p *redisPublisher) channel(userID int64) string {
	if userID == Broadcast {
		return p.prefix + ":broadcast"
	}
	return fmt.Sprintf("%s:user:%d", p.prefix, userID)
}

func (p *redisPublisher) Publish(ctx context.Context, userID int64, event string, payload any) error {
	data, err := json.Marshal(Envelope{
		ID:        uuid.NewString(),
		Event:     event,
		UserID:    userID,
		Payload:   payload,
		EmittedAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	channel := p.channel(userID)
	if err = p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", event, channel, err)
	}

	p.logger.Debug("notification published", zap.String("channel", channel), zap.String("event", event))
	return nil
}
