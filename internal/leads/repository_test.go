package leads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/wolfman30/leadflow/internal/session"
)

func sampleState() session.State {
	st := session.New("sess-1", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	st.CustomerInfo = session.CustomerInfo{Name: "Dana", Email: "dana@acme.io", Company: "Acme", Industry: "insurance"}
	st.Qualification = &session.Qualification{
		Authority:   session.AuthorityScore{Score: 25, Title: "CFO"},
		TotalScore:  84,
		Tier:        session.TierHot,
		IsQualified: true,
		NextAction:  "schedule_demo",
	}
	return st
}

func TestFromState(t *testing.T) {
	lead := FromState(sampleState(), []string{"budget is $500k"})
	if lead.SessionID != "sess-1" || lead.Tier != session.TierHot || lead.TotalScore != 84 {
		t.Fatalf("unexpected lead %+v", lead)
	}
	if lead.Role != "CFO" {
		t.Fatalf("expected role from authority title, got %q", lead.Role)
	}
	if len(lead.Highlights) != 1 {
		t.Fatalf("expected highlights copied, got %v", lead.Highlights)
	}
}

func TestValidate(t *testing.T) {
	if err := (&QualifiedLead{Email: "a@b.co"}).Validate(); !errors.Is(err, ErrMissingSession) {
		t.Fatalf("expected ErrMissingSession, got %v", err)
	}
	if err := (&QualifiedLead{SessionID: "s"}).Validate(); !errors.Is(err, ErrMissingContact) {
		t.Fatalf("expected ErrMissingContact, got %v", err)
	}
}

func TestInMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()

	lead := FromState(sampleState(), nil)
	if err := repo.Save(ctx, lead); err != nil {
		t.Fatalf("save: %v", err)
	}
	firstID := lead.ID

	lead.TotalScore = 90
	if err := repo.Save(ctx, lead); err != nil {
		t.Fatalf("resave: %v", err)
	}
	if lead.ID != firstID {
		t.Fatalf("upsert should keep id, got %s vs %s", lead.ID, firstID)
	}

	got, err := repo.GetBySession(ctx, "sess-1")
	if err != nil || got.TotalScore != 90 {
		t.Fatalf("get: %+v %v", got, err)
	}

	cold := &QualifiedLead{SessionID: "sess-2", Phone: "5551234567", Tier: session.TierCold}
	if err := repo.Save(ctx, cold); err != nil {
		t.Fatalf("save cold: %v", err)
	}
	hot, _ := repo.ListByTier(ctx, session.TierHot, 0)
	if len(hot) != 1 || hot[0].SessionID != "sess-1" {
		t.Fatalf("unexpected hot list %v", hot)
	}
	all, _ := repo.ListByTier(ctx, "", 1)
	if len(all) != 1 {
		t.Fatalf("expected limit applied, got %d", len(all))
	}

	if err := repo.Delete(ctx, "sess-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetBySession(ctx, "sess-2"); !errors.Is(err, ErrLeadNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := repo.Delete(ctx, "sess-2"); !errors.Is(err, ErrLeadNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestPostgresRepositorySave(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO qualified_leads").
		WithArgs(pgxmock.AnyArg(), "sess-1", pgxmock.AnyArg(), "Dana", "dana@acme.io", "", "Acme", "insurance", "CFO",
			84, "hot", true, "schedule_demo", pgxmock.AnyArg(), []byte("[]")).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(id, created))

	repo := NewPostgresRepository(mock)
	lead := FromState(sampleState(), nil)
	if err := repo.Save(context.Background(), lead); err != nil {
		t.Fatalf("save: %v", err)
	}
	if lead.ID != id.String() || !lead.CreatedAt.Equal(created) {
		t.Fatalf("unexpected returned values %+v", lead)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepositorySaveValidates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	err = NewPostgresRepository(mock).Save(context.Background(), &QualifiedLead{SessionID: "s"})
	if !errors.Is(err, ErrMissingContact) {
		t.Fatalf("expected ErrMissingContact, got %v", err)
	}
}

var leadColumns = []string{"id", "session_id", "correlation_id", "name", "email", "phone", "company", "industry", "role",
	"total_score", "tier", "is_qualified", "next_action", "qualification", "highlights", "created_at"}

func TestPostgresRepositoryGetBySession(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT .* FROM qualified_leads WHERE session_id").
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows(leadColumns).AddRow(
			id, "sess-1", "corr", "Dana", "dana@acme.io", "", "Acme", "insurance", "CFO",
			84, "hot", true, "schedule_demo", []byte(`{"totalScore":84,"tier":"hot"}`), []byte(`["budget is $500k"]`), created,
		))
	mock.ExpectQuery("SELECT .* FROM qualified_leads WHERE session_id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	repo := NewPostgresRepository(mock)
	lead, err := repo.GetBySession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if lead.ID != id.String() || lead.Tier != session.TierHot || lead.Qualification == nil || lead.Qualification.TotalScore != 84 {
		t.Fatalf("unexpected lead %+v", lead)
	}
	if len(lead.Highlights) != 1 {
		t.Fatalf("expected 1 highlight, got %v", lead.Highlights)
	}

	if _, err := repo.GetBySession(context.Background(), "missing"); !errors.Is(err, ErrLeadNotFound) {
		t.Fatalf("expected ErrLeadNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepositoryListByTier(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows(leadColumns).
		AddRow(uuid.New(), "s1", "c1", "", "a@b.co", "", "", "", "", 85, "hot", true, "schedule_demo", []byte("null"), []byte("[]"), created).
		AddRow(uuid.New(), "s2", "c2", "", "", "5551234567", "", "", "", 81, "hot", true, "schedule_demo", []byte("null"), []byte("[]"), created)
	mock.ExpectQuery("SELECT .* FROM qualified_leads").
		WithArgs("hot", defaultListLimit).
		WillReturnRows(rows)

	got, err := NewPostgresRepository(mock).ListByTier(context.Background(), session.TierHot, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[1].SessionID != "s2" || got[0].Qualification != nil {
		t.Fatalf("unexpected list %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepositoryDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("DELETE FROM qualified_leads").WithArgs("s1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM qualified_leads").WithArgs("s2").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := NewPostgresRepository(mock)
	if err := repo.Delete(context.Background(), "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(context.Background(), "s2"); !errors.Is(err, ErrLeadNotFound) {
		t.Fatalf("expected ErrLeadNotFound, got %v", err)
	}
}
