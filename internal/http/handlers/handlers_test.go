package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/leadflow/internal/dispatch"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/monitoring"
	"github.com/wolfman30/leadflow/internal/orchestrator"
	"github.com/wolfman30/leadflow/internal/session"
	"github.com/wolfman30/leadflow/pkg/logging"
)

type stubDispatcher struct {
	got orchestrator.Inbound
	out orchestrator.Outbound
	err error
}

func (s *stubDispatcher) Dispatch(_ context.Context, in orchestrator.Inbound) (orchestrator.Outbound, error) {
	s.got = in
	return s.out, s.err
}

type stubSessions struct {
	state session.State
	err   error
}

func (s *stubSessions) Session(context.Context, string) (session.State, error) {
	return s.state, s.err
}

func (s *stubSessions) Abandon(context.Context, string) (session.State, error) {
	st := s.state
	st.Status = session.StatusAbandoned
	return st, s.err
}

func serve(method, pattern, path, body string, h http.HandlerFunc) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func TestPostMessageErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{name: "ok", body: `{"text":"hi"}`, want: http.StatusOK},
		{name: "bad json", body: `{`, want: http.StatusBadRequest},
		{name: "empty text", body: `{"text":""}`, err: orchestrator.ErrEmptyMessage, want: http.StatusBadRequest},
		{name: "shutting down", body: `{"text":"hi"}`, err: dispatch.ErrDispatcherClosed, want: http.StatusServiceUnavailable},
		{name: "timeout", body: `{"text":"hi"}`, err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{name: "store failure", body: `{"text":"hi"}`, err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &stubDispatcher{err: tt.err, out: orchestrator.Outbound{SessionID: "s1", ReplyText: "hello"}}
			h := NewSessionHandler(d, &stubSessions{}, logging.Discard())
			rr := serve(http.MethodPost, "/v1/sessions/{sessionID}/messages", "/v1/sessions/s1/messages", tt.body, h.PostMessage)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
			if tt.want == http.StatusOK {
				if d.got.SessionID != "s1" || d.got.Text != "hi" {
					t.Fatalf("unexpected inbound %+v", d.got)
				}
				if !strings.Contains(rr.Body.String(), `"replyText":"hello"`) {
					t.Fatalf("unexpected body %s", rr.Body.String())
				}
			}
		})
	}
}

func TestGetSessionAndAbandon(t *testing.T) {
	sessions := &stubSessions{state: session.New("s1", testTime)}
	h := NewSessionHandler(&stubDispatcher{}, sessions, logging.Discard())

	rr := serve(http.MethodGet, "/v1/sessions/{sessionID}", "/v1/sessions/s1", "", h.GetSession)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rr.Code)
	}

	rr = serve(http.MethodPost, "/v1/sessions/{sessionID}/abandon", "/v1/sessions/s1/abandon", "", h.Abandon)
	if rr.Code != http.StatusOK {
		t.Fatalf("abandon: expected 200, got %d", rr.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["conversationStatus"] != string(session.StatusAbandoned) {
		t.Fatalf("unexpected body %v", body)
	}

	sessions.err = session.ErrNotFound
	if rr := serve(http.MethodGet, "/v1/sessions/{sessionID}", "/v1/sessions/s1", "", h.GetSession); rr.Code != http.StatusNotFound {
		t.Fatalf("missing: expected 404, got %d", rr.Code)
	}
	sessions.err = errors.New("redis down")
	if rr := serve(http.MethodGet, "/v1/sessions/{sessionID}", "/v1/sessions/s1", "", h.GetSession); rr.Code != http.StatusInternalServerError {
		t.Fatalf("failure: expected 500, got %d", rr.Code)
	}
}

func TestLeadsHandler(t *testing.T) {
	repo := leads.NewInMemoryRepository()
	ctx := context.Background()
	for _, l := range []*leads.QualifiedLead{
		{SessionID: "a", Email: "a@x.io", Tier: session.TierHot, TotalScore: 90},
		{SessionID: "b", Phone: "5551234567", Tier: session.TierCold, TotalScore: 45},
	} {
		if err := repo.Save(ctx, l); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	h := NewLeadsHandler(repo, logging.Discard())

	rr := serve(http.MethodGet, "/v1/leads", "/v1/leads?tier=hot", "", h.List)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rr.Code)
	}
	var list struct {
		Count int                   `json:"count"`
		Leads []leads.QualifiedLead `json:"leads"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Count != 1 || list.Leads[0].SessionID != "a" {
		t.Fatalf("unexpected list %+v", list)
	}

	rr = serve(http.MethodGet, "/v1/leads", "/v1/leads", "", h.List)
	if !strings.Contains(rr.Body.String(), `"count":2`) {
		t.Fatalf("expected all leads without tier filter: %s", rr.Body.String())
	}
	if rr := serve(http.MethodGet, "/v1/leads", "/v1/leads?tier=lukewarm", "", h.List); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid tier: expected 400, got %d", rr.Code)
	}
	if rr := serve(http.MethodGet, "/v1/leads/{sessionID}", "/v1/leads/zzz", "", h.Get); rr.Code != http.StatusNotFound {
		t.Fatalf("missing lead: expected 404, got %d", rr.Code)
	}
}

func TestMonitoringHandler(t *testing.T) {
	m := monitoring.New(monitoring.Config{Logger: logging.Discard()})
	m.SessionStarted("s1", "c1")
	m.RecordTransition("s1", "c1", session.PhaseGreeting, session.PhaseDiscovery)
	h := NewMonitoringHandler(m)

	rr := serve(http.MethodGet, "/logs/{correlationID}", "/logs/c1", "", h.CorrelationLogs)
	if !strings.Contains(rr.Body.String(), `"count":2`) {
		t.Fatalf("expected two correlation entries: %s", rr.Body.String())
	}
	rr = serve(http.MethodGet, "/sessions/{sessionID}", "/sessions/nope", "", h.SessionLogs)
	if !strings.Contains(rr.Body.String(), `"count":0`) {
		t.Fatalf("expected empty session log: %s", rr.Body.String())
	}
	rr = serve(http.MethodGet, "/metrics", "/metrics", "", h.Metrics)
	if !strings.Contains(rr.Body.String(), `"activeSessions":1`) {
		t.Fatalf("unexpected metrics: %s", rr.Body.String())
	}
}

var testTime = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func TestWriteJSONIsUncacheable(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusCreated, map[string]int{"n": 1})
	if rr.Code != http.StatusCreated || rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("unexpected response %d %v", rr.Code, rr.Header())
	}
	if strings.TrimSpace(rr.Body.String()) != `{"n":1}` {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}
