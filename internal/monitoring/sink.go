package monitoring

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/leadflow/pkg/logging"
)

const sinkWriteTimeout = 2 * time.Second

// Sink receives a copy of every entry, off the request path.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

func (m *Monitor) enqueue(e Entry) {
	if m.queue == nil {
		return
	}
	m.sinkMu.RLock()
	defer m.sinkMu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- e:
	default:
		m.dropped.Add(1)
		m.prom.SinkDropped()
	}
}

func (m *Monitor) drain() {
	defer m.wg.Done()
	for e := range m.queue {
		m.writeSink(e)
	}
}

func (m *Monitor) writeSink(e Entry) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("monitor sink panicked", "panic", fmt.Sprint(r))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
	defer cancel()
	if err := m.sink.Write(ctx, e); err != nil {
		m.logger.Warn("monitor sink write failed", "error", err, "kind", e.Kind, "session_id", e.SessionID)
	}
}

// Shutdown stops accepting sink writes and waits for buffered entries to
// flush or ctx to expire. Recording keeps working in memory afterwards.
func (m *Monitor) Shutdown(ctx context.Context) error {
	if m == nil || m.queue == nil {
		return nil
	}
	m.sinkMu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.sinkMu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("monitoring: shutdown: %w", ctx.Err())
	}
}

// LogSink writes entries through the structured logger.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSink{logger: logger.WithComponent("monitor")}
}

func (s *LogSink) Write(ctx context.Context, e Entry) error {
	s.logger.WithSession(e.SessionID, e.CorrelationID).InfoContext(ctx, "monitor entry",
		"kind", e.Kind,
		"seq", e.Seq,
		"agent", e.Agent,
		"status", e.Status,
		"duration_ms", e.Duration.Milliseconds(),
		"component", e.Component,
		"message", e.Message,
		"from", e.From,
		"to", e.To,
	)
	return nil
}

// RedisStreamSink appends entries to a per-correlation Redis stream.
type RedisStreamSink struct {
	client redis.Cmdable
	maxLen int64
}

// NewRedisStreamSink returns a sink trimming each stream to roughly maxLen
// entries.
func NewRedisStreamSink(client redis.Cmdable, maxLen int64) *RedisStreamSink {
	if client == nil {
		panic("monitoring: redis client cannot be nil")
	}
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &RedisStreamSink{client: client, maxLen: maxLen}
}

// StreamKey is the stream an entry with correlationID lands in.
func StreamKey(correlationID string) string {
	return fmt.Sprintf("monitor:%s", correlationID)
}

func (s *RedisStreamSink) Write(ctx context.Context, e Entry) error {
	key := e.CorrelationID
	if key == "" {
		key = e.SessionID
	}
	values := map[string]any{
		"seq":        strconv.FormatUint(e.Seq, 10),
		"kind":       string(e.Kind),
		"session_id": e.SessionID,
		"timestamp":  e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	optional := map[string]string{
		"agent":     e.Agent,
		"status":    e.Status,
		"component": e.Component,
		"message":   e.Message,
		"from":      e.From,
		"to":        e.To,
	}
	for k, v := range optional {
		if v != "" {
			values[k] = v
		}
	}
	if e.Duration > 0 {
		values["duration_ms"] = strconv.FormatInt(e.Duration.Milliseconds(), 10)
	}
	if e.Kind == KindError {
		values["recovered"] = strconv.FormatBool(e.Recovered)
	}

	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(key),
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("monitoring: xadd: %w", err)
	}
	return nil
}
