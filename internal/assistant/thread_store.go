package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultThreadTTL bounds how long an idle conversation keeps its thread.
const DefaultThreadTTL = 24 * time.Hour

// ThreadStore maps a WhatsApp number to its assistant thread so conversation
// history survives across turns. Entries expire after the TTL; a miss simply
// means the next turn starts a fresh thread.
type ThreadStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewThreadStore creates a Redis-backed thread store. A nil client yields a
// nil store, which callers treat as "always start fresh".
func NewThreadStore(client *redis.Client, ttl time.Duration) *ThreadStore {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultThreadTTL
	}
	return &ThreadStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("concierge.internal.assistant.threads"),
	}
}

// Lookup returns the stored thread ID for the number, or empty on a miss.
func (s *ThreadStore) Lookup(ctx context.Context, number string) (string, error) {
	if s == nil || s.redis == nil {
		return "", nil
	}
	ctx, span := s.tracer.Start(ctx, "assistant.thread_lookup")
	defer span.End()

	threadID, err := s.redis.Get(ctx, threadKey(number)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("assistant: lookup thread: %w", err)
	}
	return threadID, nil
}

// Save associates the thread with the number and refreshes the TTL.
func (s *ThreadStore) Save(ctx context.Context, number, threadID string) error {
	if s == nil || s.redis == nil {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "assistant.thread_save")
	defer span.End()

	if err := s.redis.Set(ctx, threadKey(number), threadID, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("assistant: save thread: %w", err)
	}
	return nil
}

func threadKey(number string) string {
	return fmt.Sprintf("thread:wa:%s", number)
}
