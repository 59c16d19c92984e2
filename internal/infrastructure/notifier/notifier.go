// Package notifier provides Notifier implementations: structured log
// output, an in-memory recorder, and Redis Pub/Sub fan-out.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"orderflow/internal/domain/notification"
	"orderflow/pkg/logger"
)

// LogNotifier writes every event to the structured log.
type LogNotifier struct{}

// Notify implements notification.Notifier.
func (LogNotifier) Notify(ctx context.Context, event notification.Event) error {
	logger.Info(ctx, "notification",
		"event_type", event.Type,
		"aggregate_type", event.AggregateType,
		"aggregate_id", event.AggregateID,
		"payload", event.Payload)
	return nil
}

// Recorder keeps events in memory. Used by tests and the memory profile.
type Recorder struct {
	mu     sync.Mutex
	events []notification.Event
	// Err, when set, is returned by every Notify call after recording.
	Err error
}

// Notify implements notification.Notifier.
func (r *Recorder) Notify(_ context.Context, event notification.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.Err
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []notification.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification.Event(nil), r.events...)
}

// OfType returns recorded events of one type.
func (r *Recorder) OfType(eventType string) []notification.Event {
	var out []notification.Event
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// RedisPublisher publishes events as JSON on a Redis channel per event type.
type RedisPublisher struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisPublisher creates a publisher. Channels are named prefix + event type.
func NewRedisPublisher(rdb redis.UniversalClient, prefix string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

// Channel returns the channel an event type is published on.
func (p *RedisPublisher) Channel(eventType string) string {
	return p.prefix + eventType
}

// Notify implements notification.Notifier.
func (p *RedisPublisher) Notify(ctx context.Context, event notification.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.Publish(ctx, event.Type, body)
}

// Publish sends an already encoded event. The outbox relay uses it directly.
func (p *RedisPublisher) Publish(ctx context.Context, eventType string, body []byte) error {
	if err := p.rdb.Publish(ctx, p.Channel(eventType), body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

var (
	_ notification.Notifier = LogNotifier{}
	_ notification.Notifier = (*Recorder)(nil)
	_ notification.Notifier = (*RedisPublisher)(nil)
)
