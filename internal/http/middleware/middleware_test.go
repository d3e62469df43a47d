package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/leadflow/pkg/logging"
)

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://widget.example.com/"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/sessions/s1/messages", nil)
	req.Header.Set("Origin", "https://Widget.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://Widget.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected CORS header for disallowed origin")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected request to pass through, got %d", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("s1") || !rl.Allow("s1") {
		t.Fatalf("burst should allow two requests")
	}
	if rl.Allow("s1") {
		t.Fatalf("third request should be limited")
	}
	if !rl.Allow("s2") {
		t.Fatalf("other keys have their own bucket")
	}
	now = now.Add(time.Second)
	if !rl.Allow("s1") {
		t.Fatalf("bucket should refill")
	}
	now = now.Add(time.Hour)
	if n := rl.Prune(time.Minute); n != 2 {
		t.Fatalf("expected 2 pruned buckets, got %d", n)
	}
}

func TestSessionRateLimitUsesRouteParam(t *testing.T) {
	r := chi.NewRouter()
	r.With(SessionRateLimit(NewRateLimiter(0, 1))).Post("/v1/sessions/{sessionID}/messages", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	codes := []int{}
	for _, id := range []string{"a", "a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions/"+id+"/messages", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != 200 || codes[1] != 429 || codes[2] != 200 {
		t.Fatalf("unexpected status codes %v", codes)
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	h := chimw.RequestID(RequestLogger(logging.NewWithWriter(&buf, "info"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/sessions/x", nil))

	out := buf.String()
	for _, want := range []string{`"status":404`, `"path":"/v1/sessions/x"`, `"level":"WARN"`, `"request_id":`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in log line: %s", want, out)
		}
	}
}
