package leads

import (
	"strings"
	"time"

	"github.com/wolfman30/leadflow/internal/session"
)

// QualifiedLead is a scored conversation handed off to sales.
type QualifiedLead struct {
	ID            string                 `json:"id"`
	SessionID     string                 `json:"session_id"`
	CorrelationID string                 `json:"correlation_id"`
	Name          string                 `json:"name"`
	Email         string                 `json:"email"`
	Phone         string                 `json:"phone"`
	Company       string                 `json:"company"`
	Industry      string                 `json:"industry"`
	Role          string                 `json:"role"`
	TotalScore    int                    `json:"total_score"`
	Tier          session.Tier           `json:"tier"`
	IsQualified   bool                   `json:"is_qualified"`
	NextAction    string                 `json:"next_action"`
	Qualification *session.Qualification `json:"qualification,omitempty"`
	Highlights    []string               `json:"highlights"`
	CreatedAt     time.Time              `json:"created_at"`
}

// Validate checks the fields the table requires.
func (l *QualifiedLead) Validate() error {
	if strings.TrimSpace(l.SessionID) == "" {
		return ErrMissingSession
	}
	if l.Email == "" && l.Phone == "" {
		return ErrMissingContact
	}
	return nil
}

// FromState builds a lead from a finished conversation.
func FromState(st session.State, highlights []string) *QualifiedLead {
	info := st.CustomerInfo
	lead := &QualifiedLead{
		SessionID:     st.SessionID,
		CorrelationID: st.CorrelationID,
		Name:          info.Name,
		Email:         info.Email,
		Phone:         info.Phone,
		Company:       info.Company,
		Industry:      info.Industry,
		Role:          info.Role,
		Highlights:    append([]string(nil), highlights...),
	}
	if q := st.Qualification; q != nil {
		copied := *q
		lead.Qualification = &copied
		lead.TotalScore = q.TotalScore
		lead.Tier = q.Tier
		lead.IsQualified = q.IsQualified
		lead.NextAction = q.NextAction
		if lead.Role == "" {
			lead.Role = q.Authority.Title
		}
	}
	return lead
}
