package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis key prefixes
const (
	outboxKey     = "notify:outbound"
	deadLetterKey = "notify:dead"
)

// OutboundMessage is a notification waiting to be delivered to a chat.
type OutboundMessage struct {
	ChatID   int64     `json:"chat_id"`
	Text     string    `json:"text"`
	Attempts int       `json:"attempts"`
	QueuedAt time.Time `json:"queued_at"`
}

// Outbox is a Redis-backed delivery buffer for outbound notifications.
// Messages survive process restarts and are drained by the notification
// worker at its own pace.
type Outbox struct {
	client *redis.Client
}

// NewOutbox creates an outbox on top of an existing Redis client
func NewOutbox(client *redis.Client) *Outbox {
	return &Outbox{client: client}
}

// Push queues a message for delivery
func (o *Outbox) Push(ctx context.Context, msg OutboundMessage) error {
	if msg.QueuedAt.IsZero() {
		msg.QueuedAt = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outbound message: %w", err)
	}
	if err := o.client.LPush(ctx, outboxKey, data).Err(); err != nil {
		return fmt.Errorf("failed to queue outbound message: %w", err)
	}
	return nil
}

// Pop blocks up to timeout waiting for the next message. Returns nil
// when the queue stays empty.
func (o *Outbox) Pop(ctx context.Context, timeout time.Duration) (*OutboundMessage, error) {
	result, err := o.client.BRPop(ctx, timeout, outboxKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("error popping outbound message: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("invalid result from BRPOP")
	}

	var msg OutboundMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outbound message: %w", err)
	}
	return &msg, nil
}

// Requeue puts a failed message back with its attempt count bumped.
// After three attempts the message moves to the dead letter list.
func (o *Outbox) Requeue(ctx context.Context, msg OutboundMessage) error {
	msg.Attempts++
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outbound message: %w", err)
	}
	key := outboxKey
	if msg.Attempts >= 3 {
		key = deadLetterKey
	}
	if err := o.client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to requeue outbound message: %w", err)
	}
	return nil
}

// Pending returns the number of messages waiting for delivery
func (o *Outbox) Pending(ctx context.Context) (int64, error) {
	return o.client.LLen(ctx, outboxKey).Result()
}
