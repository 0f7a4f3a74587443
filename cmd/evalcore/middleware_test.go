package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evalcore/evalcore/config"
	"github.com/evalcore/evalcore/types"
)

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := SecurityHeaders()(inner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestSecurityHeaders_ChainedWithOtherMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	handler := Chain(inner, SecurityHeaders(), RequestID())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTAuth_InjectsTenantUserRole(t *testing.T) {
	cfg := config.JWTConfig{Secret: "test-secret"}
	var gotTenant, gotUser, gotRole string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant, _ = types.TenantID(r.Context())
		gotUser, _ = types.UserID(r.Context())
		gotRole, _ = types.Role(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	handler := JWTAuth(cfg, nil, zap.NewNop())(inner)

	token := signHS256(t, "test-secret", jwt.MapClaims{
		"tenant_id": "tenant-1",
		"user_id":   "user-1",
		"role":      "operator",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	r := httptest.NewRequest(http.MethodGet, "/api/v1/evaluation/suites", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tenant-1", gotTenant)
	assert.Equal(t, "user-1", gotUser)
	assert.Equal(t, "operator", gotRole)
}

func TestJWTAuth_MissingTenantForbidden(t *testing.T) {
	cfg := config.JWTConfig{Secret: "test-secret"}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := JWTAuth(cfg, nil, zap.NewNop())(inner)

	token := signHS256(t, "test-secret", jwt.MapClaims{
		"user_id": "user-1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	r := httptest.NewRequest(http.MethodGet, "/api/v1/evaluation/suites", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestJWTAuth_SkipsHealthPath(t *testing.T) {
	cfg := config.JWTConfig{Secret: "test-secret"}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := JWTAuth(cfg, []string{"/health"}, zap.NewNop())(inner)

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuth_MissingBearerHeader(t *testing.T) {
	cfg := config.JWTConfig{Secret: "test-secret"}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := JWTAuth(cfg, nil, zap.NewNop())(inner)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/evaluation/suites", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/health":                                               "/health",
		"/api/v1/evaluation/suites":                             "/api/v1/evaluation/suites",
		"/api/v1/evaluation/executions/550e8400-e29b-41d4-a716-446655440000/status": "/api/v1/evaluation/executions/:id/status",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizePath(in), in)
	}
}
