package notify

import (
	"sync"
	"time"
)

// defaultDeliveryTTL bounds how long a partial delivery is remembered.
const defaultDeliveryTTL = 24 * time.Hour

// deliveryLog remembers which targets already received a session's record
// while some other target is still failing. Entries are dropped once the
// whole delivery succeeds or the TTL passes.
type deliveryLog struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*partialDelivery
}

type partialDelivery struct {
	done  map[string]bool
	first time.Time
}

func newDeliveryLog() *deliveryLog {
	return &deliveryLog{
		ttl:      defaultDeliveryTTL,
		now:      time.Now,
		sessions: make(map[string]*partialDelivery),
	}
}

func (l *deliveryLog) delivered(sessionID, target string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.sessions[sessionID]
	if !ok {
		return false
	}
	if l.now().Sub(p.first) > l.ttl {
		delete(l.sessions, sessionID)
		return false
	}
	return p.done[target]
}

func (l *deliveryLog) mark(sessionID, target string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for id, p := range l.sessions {
		if now.Sub(p.first) > l.ttl {
			delete(l.sessions, id)
		}
	}
	p, ok := l.sessions[sessionID]
	if !ok {
		p = &partialDelivery{done: make(map[string]bool), first: now}
		l.sessions[sessionID] = p
	}
	p.done[target] = true
}

func (l *deliveryLog) forget(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, sessionID)
}

func (l *deliveryLog) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}
