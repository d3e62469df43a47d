package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/leadflow/internal/session"
)

// Repository stores qualified leads. Save is an upsert keyed by session.
type Repository interface {
	Save(ctx context.Context, lead *QualifiedLead) error
	GetBySession(ctx context.Context, sessionID string) (*QualifiedLead, error)
	ListByTier(ctx context.Context, tier session.Tier, limit int) ([]*QualifiedLead, error)
	Delete(ctx context.Context, sessionID string) error
}

// InMemoryRepository keeps leads in a map; used in development and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*QualifiedLead
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*QualifiedLead),
	}
}

func (r *InMemoryRepository) Save(ctx context.Context, lead *QualifiedLead) error {
	if err := lead.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *lead
	if existing, ok := r.leads[lead.SessionID]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.ID = uuid.New().String()
		stored.CreatedAt = time.Now().UTC()
	}
	r.leads[lead.SessionID] = &stored
	lead.ID = stored.ID
	lead.CreatedAt = stored.CreatedAt
	return nil
}

func (r *InMemoryRepository) GetBySession(ctx context.Context, sessionID string) (*QualifiedLead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[sessionID]
	if !ok {
		return nil, ErrLeadNotFound
	}
	copied := *lead
	return &copied, nil
}

// ListByTier returns the newest leads in a tier; an empty tier lists all.
func (r *InMemoryRepository) ListByTier(ctx context.Context, tier session.Tier, limit int) ([]*QualifiedLead, error) {
	r.mu.RLock()
	out := make([]*QualifiedLead, 0, len(r.leads))
	for _, l := range r.leads {
		if tier == "" || l.Tier == tier {
			copied := *l
			out = append(out, &copied)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.leads[sessionID]; !ok {
		return ErrLeadNotFound
	}
	delete(r.leads, sessionID)
	return nil
}
