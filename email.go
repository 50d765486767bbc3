package teamgate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmailTokenEvent is the payload handed to the email delivery layer when a
// one-time code must reach the user's mailbox. EventID lets the mailer
// deduplicate redelivered events.
type EmailTokenEvent struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	TeamID    string    `json:"team_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EmailPublisher hands email token events to the delivery layer. A returned
// error is fatal to the send: email is the channel of last resort and has no
// further fallback.
type EmailPublisher interface {
	PublishEmailToken(ctx context.Context, event EmailTokenEvent) error
}

// RedisEmailPublisher publishes email token events as JSON on a Redis
// pub/sub channel consumed by the mailer service.
type RedisEmailPublisher struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisEmailPublisher creates a publisher on the given channel.
func NewRedisEmailPublisher(client redis.UniversalClient, channel string) *RedisEmailPublisher {
	return &RedisEmailPublisher{client: client, channel: channel}
}

// PublishEmailToken implements EmailPublisher.
func (p *RedisEmailPublisher) PublishEmailToken(ctx context.Context, event EmailTokenEvent) error {
	blob, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode email token event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, blob).Err(); err != nil {
		return fmt.Errorf("publish email token event: %w", err)
	}
	return nil
}
