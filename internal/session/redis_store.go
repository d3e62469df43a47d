package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultSessionTTL = 72 * time.Hour

// RedisStore keeps each session as a JSON blob with a sliding TTL. Closed
// sessions are kept without expiry so they stay readable for export.
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
}

// NewRedisStore wraps a go-redis client.
func NewRedisStore(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if tracer == nil {
		tracer = otel.Tracer("leadflow.internal.session")
	}
	return &RedisStore{redis: client, tracer: tracer, ttl: ttl}
}

// Load fetches and decodes a session.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (State, error) {
	ctx, span := s.tracer.Start(ctx, "session.load", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, ErrNotFound
		}
		span.RecordError(err)
		return State{}, fmt.Errorf("session: failed to load state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		span.RecordError(err)
		return State{}, fmt.Errorf("session: failed to decode state: %w", err)
	}
	return st, nil
}

// Save encodes and writes a session.
func (s *RedisStore) Save(ctx context.Context, state State) error {
	ctx, span := s.tracer.Start(ctx, "session.save", trace.WithAttributes(
		attribute.String("session.id", state.SessionID),
		attribute.String("session.phase", string(state.Phase)),
	))
	defer span.End()

	if state.SessionID == "" {
		return errors.New("session: session id is required")
	}
	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal state: %w", err)
	}

	ttl := s.ttl
	if state.Status.Terminal() {
		ttl = 0
	}
	if err := s.redis.Set(ctx, sessionKey(state.SessionID), data, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist state: %w", err)
	}
	return nil
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

var _ Store = (*RedisStore)(nil)
