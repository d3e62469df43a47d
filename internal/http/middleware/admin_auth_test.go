package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func serveAdmin(t *testing.T, mw func(http.Handler) http.Handler, authHeader string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/monitoring/metrics", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	called := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := AdminClaimsFromContext(r.Context()); !ok {
			t.Fatalf("expected admin claims in context")
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	return rec, called
}

func TestAdminJWT(t *testing.T) {
	valid := signedAdminToken(t, "secret", "monitoring:read leads:read", time.Now().Add(5*time.Minute))
	tests := []struct {
		name     string
		secret   string
		scope    string
		header   string
		wantCode int
	}{
		{"disabled without secret", "", "", "Bearer " + valid, http.StatusUnauthorized},
		{"missing header", "secret", "", "", http.StatusUnauthorized},
		{"wrong scheme", "secret", "", "Basic abc", http.StatusUnauthorized},
		{"wrong key", "secret", "", "Bearer " + signedAdminToken(t, "wrong", "", time.Now().Add(time.Minute)), http.StatusUnauthorized},
		{"expired", "secret", "", "Bearer " + signedAdminToken(t, "secret", "", time.Now().Add(-time.Minute)), http.StatusUnauthorized},
		{"no expiry", "secret", "", "Bearer " + signedAdminToken(t, "secret", "", time.Time{}), http.StatusUnauthorized},
		{"missing scope", "secret", "admin:write", "Bearer " + valid, http.StatusForbidden},
		{"valid", "secret", "monitoring:read", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "secret", "", "bearer " + valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, called := serveAdmin(t, AdminJWT(tt.secret, tt.scope), tt.header)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if called != (tt.wantCode == http.StatusOK) {
				t.Fatalf("handler called=%v for status %d", called, rec.Code)
			}
		})
	}
}

func TestAdminJWTRejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	rec, _ := serveAdmin(t, AdminJWT("secret", ""), "Bearer "+signed)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func signedAdminToken(t *testing.T, secret, scope string, expires time.Time) string {
	t.Helper()
	claims := AdminClaims{Scope: scope, RegisteredClaims: jwt.RegisteredClaims{Subject: "ops-user"}}
	if !expires.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expires)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
