package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/leadflow/internal/session"
)

const defaultListLimit = 100

// db is satisfied by *pgxpool.Pool and pgxmock pools.
type db interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository stores leads in the qualified_leads table.
type PostgresRepository struct {
	pool db
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool db) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// Save inserts or refreshes the lead for its session.
func (r *PostgresRepository) Save(ctx context.Context, lead *QualifiedLead) error {
	if err := lead.Validate(); err != nil {
		return err
	}
	qualification, err := json.Marshal(lead.Qualification)
	if err != nil {
		return fmt.Errorf("leads: encode qualification: %w", err)
	}
	highlights, err := json.Marshal(nonNil(lead.Highlights))
	if err != nil {
		return fmt.Errorf("leads: encode highlights: %w", err)
	}

	query := `
		INSERT INTO qualified_leads (id, session_id, correlation_id, name, email, phone, company, industry, role,
			total_score, tier, is_qualified, next_action, qualification, highlights)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (session_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			company = EXCLUDED.company,
			industry = EXCLUDED.industry,
			role = EXCLUDED.role,
			total_score = EXCLUDED.total_score,
			tier = EXCLUDED.tier,
			is_qualified = EXCLUDED.is_qualified,
			next_action = EXCLUDED.next_action,
			qualification = EXCLUDED.qualification,
			highlights = EXCLUDED.highlights,
			updated_at = now()
		RETURNING id, created_at
	`
	var (
		id        uuid.UUID
		createdAt time.Time
	)
	if err := r.pool.QueryRow(ctx, query,
		uuid.New(),
		lead.SessionID,
		lead.CorrelationID,
		lead.Name,
		lead.Email,
		lead.Phone,
		lead.Company,
		lead.Industry,
		lead.Role,
		lead.TotalScore,
		string(lead.Tier),
		lead.IsQualified,
		lead.NextAction,
		qualification,
		highlights,
	).Scan(&id, &createdAt); err != nil {
		return fmt.Errorf("leads: upsert failed: %w", err)
	}
	lead.ID = id.String()
	lead.CreatedAt = createdAt
	return nil
}

const selectColumns = `id, session_id, correlation_id, name, email, phone, company, industry, role,
	total_score, tier, is_qualified, next_action, qualification, highlights, created_at`

// GetBySession fetches the lead for a session.
func (r *PostgresRepository) GetBySession(ctx context.Context, sessionID string) (*QualifiedLead, error) {
	query := `SELECT ` + selectColumns + ` FROM qualified_leads WHERE session_id = $1`
	lead, err := scanLead(r.pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

// ListByTier returns the newest leads in a tier; an empty tier lists all.
func (r *PostgresRepository) ListByTier(ctx context.Context, tier session.Tier, limit int) ([]*QualifiedLead, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `SELECT ` + selectColumns + ` FROM qualified_leads
		WHERE ($1 = '' OR tier = $1)
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, string(tier), limit)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	var out []*QualifiedLead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	return out, nil
}

func scanLead(row pgx.Row) (*QualifiedLead, error) {
	var (
		lead          QualifiedLead
		id            uuid.UUID
		tier          string
		qualification []byte
		highlights    []byte
	)
	if err := row.Scan(
		&id,
		&lead.SessionID,
		&lead.CorrelationID,
		&lead.Name,
		&lead.Email,
		&lead.Phone,
		&lead.Company,
		&lead.Industry,
		&lead.Role,
		&lead.TotalScore,
		&tier,
		&lead.IsQualified,
		&lead.NextAction,
		&qualification,
		&highlights,
		&lead.CreatedAt,
	); err != nil {
		return nil, err
	}
	lead.ID = id.String()
	lead.Tier = session.Tier(tier)
	if len(qualification) > 0 && string(qualification) != "null" {
		var q session.Qualification
		if err := json.Unmarshal(qualification, &q); err != nil {
			return nil, fmt.Errorf("decode qualification: %w", err)
		}
		lead.Qualification = &q
	}
	if len(highlights) > 0 {
		if err := json.Unmarshal(highlights, &lead.Highlights); err != nil {
			return nil, fmt.Errorf("decode highlights: %w", err)
		}
	}
	return &lead, nil
}

// Delete removes the lead for a session.
func (r *PostgresRepository) Delete(ctx context.Context, sessionID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM qualified_leads WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("leads: delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
