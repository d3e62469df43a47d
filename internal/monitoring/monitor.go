// Package monitoring records node executions, errors and phase transitions
// for every conversation and answers queries by session or correlation ID.
// Recording is best-effort: nothing here returns an error to the caller.
package monitoring

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wolfman30/leadflow/internal/observability/metrics"
	"github.com/wolfman30/leadflow/internal/session"
	"github.com/wolfman30/leadflow/pkg/logging"
)

const (
	// DefaultMaxEntries bounds the in-memory log when no limit is configured.
	DefaultMaxEntries = 10000
	// DefaultIdleTimeout is how long a session may go unseen before it stops
	// counting as active.
	DefaultIdleTimeout = 72 * time.Hour

	idleSweepEvery = time.Minute
)

// Kind classifies a log entry.
type Kind string

const (
	KindSessionStarted Kind = "session_started"
	KindSessionEnded   Kind = "session_ended"
	KindSessionExpired Kind = "session_expired"
	KindExecution      Kind = "execution"
	KindError          Kind = "error"
	KindTransition     Kind = "transition"
	KindConversion     Kind = "conversion"
)

// Entry is one monitor record.
type Entry struct {
	Seq           uint64        `json:"seq"`
	Kind          Kind          `json:"kind"`
	SessionID     string        `json:"sessionId"`
	CorrelationID string        `json:"correlationId"`
	Timestamp     time.Time     `json:"timestamp"`
	Agent         string        `json:"agent,omitempty"`
	Status        string        `json:"status,omitempty"`
	Duration      time.Duration `json:"durationNs,omitempty"`
	RetryCount    int           `json:"retryCount,omitempty"`
	Component     string        `json:"component,omitempty"`
	Message       string        `json:"message,omitempty"`
	Recovered     bool          `json:"recovered,omitempty"`
	From          string        `json:"from,omitempty"`
	To            string        `json:"to,omitempty"`
}

// Metrics is the aggregate view across all sessions.
type Metrics struct {
	TotalSessions      int           `json:"totalSessions"`
	ActiveSessions     int           `json:"activeSessions"`
	ExpiredSessions    int           `json:"expiredSessions"`
	AvgSessionDuration time.Duration `json:"avgSessionDurationNs"`
	ConversionRate     float64       `json:"conversionRate"`
	ErrorRate          float64       `json:"errorRate"`
	TotalExecutions    int           `json:"totalExecutions"`
	FailedExecutions   int           `json:"failedExecutions"`
	Dropped            uint64        `json:"droppedEntries"`
}

// Config configures a Monitor.
type Config struct {
	MaxEntries int
	// IdleTimeout evicts sessions that saw no activity for this long.
	IdleTimeout time.Duration
	Sink        Sink
	SinkBuffer  int
	Metrics     *metrics.EngineMetrics
	Logger      *logging.Logger
	Now         func() time.Time
}

// Monitor is the shared, cross-session execution log.
type Monitor struct {
	mu sync.RWMutex
	// entries is a ring; head is the oldest entry once it is full.
	entries    []Entry
	head       int
	seq        uint64
	maxEntries int

	live        map[string]*liveSession
	idleTimeout time.Duration
	lastSweep   time.Time
	total       int
	ended       int
	expired     int
	endedDur    time.Duration
	conversions int
	execs       int
	failed      int

	prom   *metrics.EngineMetrics
	logger *logging.Logger
	now    func() time.Time

	sink    Sink
	queue   chan Entry
	dropped atomic.Uint64
	sinkMu  sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
}

type liveSession struct {
	correlationID string
	start         time.Time
	lastSeen      time.Time
	converted     bool
}

// New builds a Monitor. When a sink is configured a background goroutine
// drains entries into it until Shutdown.
func New(cfg Config) *Monitor {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	m := &Monitor{
		maxEntries:  cfg.MaxEntries,
		live:        make(map[string]*liveSession),
		idleTimeout: cfg.IdleTimeout,
		prom:        cfg.Metrics,
		logger:      cfg.Logger.WithComponent("monitor"),
		now:         cfg.Now,
		sink:        cfg.Sink,
	}
	if m.sink != nil {
		buf := cfg.SinkBuffer
		if buf <= 0 {
			buf = 1024
		}
		m.queue = make(chan Entry, buf)
		m.wg.Add(1)
		go m.drain()
	}
	return m
}

// SessionStarted registers a new session.
func (m *Monitor) SessionStarted(sessionID, correlationID string) {
	if m == nil {
		return
	}
	m.record(func() (Entry, bool) {
		if _, ok := m.live[sessionID]; ok {
			return Entry{}, false
		}
		now := m.now()
		m.live[sessionID] = &liveSession{correlationID: correlationID, start: now, lastSeen: now}
		m.total++
		m.prom.SessionStarted()
		return Entry{Kind: KindSessionStarted, SessionID: sessionID, CorrelationID: correlationID}, true
	})
}

// SessionEnded marks a session completed or abandoned.
func (m *Monitor) SessionEnded(sessionID, correlationID string, status session.Status) {
	if m == nil {
		return
	}
	m.record(func() (Entry, bool) {
		s, ok := m.live[sessionID]
		if !ok {
			return Entry{}, false
		}
		delete(m.live, sessionID)
		dur := m.now().Sub(s.start)
		if dur < 0 {
			dur = 0
		}
		m.ended++
		m.endedDur += dur
		m.prom.SessionEnded()
		return Entry{Kind: KindSessionEnded, SessionID: sessionID, CorrelationID: correlationID, Status: string(status), Duration: dur}, true
	})
}

// RecordExecution logs one node run.
func (m *Monitor) RecordExecution(sessionID, correlationID string, exec session.AgentExecution) {
	if m == nil {
		return
	}
	m.record(func() (Entry, bool) {
		m.touch(sessionID)
		m.execs++
		if exec.Status == session.ExecutionFailed {
			m.failed++
		}
		m.prom.ObserveExecution(exec.Agent, string(exec.Status), exec.Duration().Seconds())
		return Entry{
			Kind:          KindExecution,
			SessionID:     sessionID,
			CorrelationID: correlationID,
			Agent:         exec.Agent,
			Status:        string(exec.Status),
			Duration:      exec.Duration(),
			RetryCount:    exec.RetryCount,
			Message:       exec.Error,
		}, true
	})
}

// RecordError logs a failure.
func (m *Monitor) RecordError(sessionID, correlationID string, e session.ErrorEntry) {
	if m == nil {
		return
	}
	m.record(func() (Entry, bool) {
		m.touch(sessionID)
		m.prom.ObserveError(e.Component, e.Recovered)
		return Entry{
			Kind:          KindError,
			SessionID:     sessionID,
			CorrelationID: correlationID,
			Component:     e.Component,
			Message:       e.Message,
			Recovered:     e.Recovered,
		}, true
	})
}

// RecordTransition logs a phase change.
func (m *Monitor) RecordTransition(sessionID, correlationID string, from, to session.Phase) {
	if m == nil || from == to {
		return
	}
	m.record(func() (Entry, bool) {
		m.touch(sessionID)
		m.prom.ObserveTransition(string(from), string(to))
		return Entry{Kind: KindTransition, SessionID: sessionID, CorrelationID: correlationID, From: string(from), To: string(to)}, true
	})
}

// RecordConversion marks the session as handed off to sales. A tracked
// session converts at most once.
func (m *Monitor) RecordConversion(sessionID, correlationID string, tier session.Tier) {
	if m == nil {
		return
	}
	m.record(func() (Entry, bool) {
		if s, ok := m.live[sessionID]; ok {
			if s.converted {
				return Entry{}, false
			}
			s.converted = true
			s.lastSeen = m.now()
		}
		m.conversions++
		m.prom.ObserveConversion(string(tier))
		return Entry{Kind: KindConversion, SessionID: sessionID, CorrelationID: correlationID, Status: string(tier)}, true
	})
}

// record runs fn under the lock, appends its entry and forwards it to the
// sink. Panics are swallowed and logged.
func (m *Monitor) record(fn func() (Entry, bool)) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("monitor record panicked", "panic", fmt.Sprint(r))
		}
	}()

	for _, e := range m.appendEntry(fn) {
		m.enqueue(e)
	}
}

// appendEntry returns every entry it retained, including expiries found by
// the idle sweep.
func (m *Monitor) appendEntry(fn func() (Entry, bool)) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := fn()
	if !ok {
		return nil
	}
	e = m.stamp(e)
	m.push(e)
	return append([]Entry{e}, m.sweepIdle()...)
}

func (m *Monitor) stamp(e Entry) Entry {
	m.seq++
	e.Seq = m.seq
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now().UTC()
	}
	return e
}

// push appends to the ring, overwriting the oldest entry when full.
func (m *Monitor) push(e Entry) {
	if len(m.entries) < m.maxEntries {
		m.entries = append(m.entries, e)
		return
	}
	m.entries[m.head] = e
	m.head = (m.head + 1) % len(m.entries)
}

// each visits retained entries oldest first.
func (m *Monitor) each(fn func(Entry)) {
	n := len(m.entries)
	for i := 0; i < n; i++ {
		fn(m.entries[(m.head+i)%n])
	}
}

func (m *Monitor) touch(sessionID string) {
	if s, ok := m.live[sessionID]; ok {
		s.lastSeen = m.now()
	}
}

// sweepIdle drops sessions unseen for longer than the idle timeout. It runs
// at most once a minute.
func (m *Monitor) sweepIdle() []Entry {
	now := m.now()
	if now.Sub(m.lastSweep) < idleSweepEvery {
		return nil
	}
	m.lastSweep = now
	var idle []string
	for id, s := range m.live {
		if now.Sub(s.lastSeen) > m.idleTimeout {
			idle = append(idle, id)
		}
	}
	sort.Strings(idle)
	var out []Entry
	for _, id := range idle {
		s := m.live[id]
		delete(m.live, id)
		m.expired++
		m.prom.SessionEnded()
		e := m.stamp(Entry{Kind: KindSessionExpired, SessionID: id, CorrelationID: s.correlationID, Duration: s.lastSeen.Sub(s.start)})
		m.push(e)
		out = append(out, e)
	}
	return out
}

// LogsBySession returns the retained entries for a session, oldest first.
func (m *Monitor) LogsBySession(sessionID string) []Entry {
	return m.filter(func(e Entry) bool { return e.SessionID == sessionID })
}

// LogsByCorrelation returns the retained entries for a correlation ID,
// oldest first.
func (m *Monitor) LogsByCorrelation(correlationID string) []Entry {
	return m.filter(func(e Entry) bool { return e.CorrelationID == correlationID })
}

func (m *Monitor) filter(keep func(Entry) bool) []Entry {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0)
	m.each(func(e Entry) {
		if keep(e) {
			out = append(out, e)
		}
	})
	return out
}

// Len is the number of retained entries.
func (m *Monitor) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Metrics returns the aggregate counters.
func (m *Monitor) Metrics() Metrics {
	if m == nil {
		return Metrics{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := Metrics{
		TotalSessions:    m.total,
		ActiveSessions:   len(m.live),
		ExpiredSessions:  m.expired,
		TotalExecutions:  m.execs,
		FailedExecutions: m.failed,
		Dropped:          m.dropped.Load(),
	}
	if m.ended > 0 {
		out.AvgSessionDuration = m.endedDur / time.Duration(m.ended)
	}
	if m.total > 0 {
		out.ConversionRate = float64(m.conversions) / float64(m.total)
	}
	if m.execs > 0 {
		out.ErrorRate = float64(m.failed) / float64(m.execs)
	}
	return out
}
