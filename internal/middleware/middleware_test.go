package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnstream/internal/domain"
	"turnstream/internal/domain/models"
	"turnstream/internal/httputil"
)

type stubVerifier struct{}

func (stubVerifier) VerifyToken(token string) (*models.SupabaseClaims, error) {
	if token != "good" {
		return nil, domain.ErrUnauthorized
	}
	return &models.SupabaseClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}, Role: "authenticated"}, nil
}

func (stubVerifier) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuthMiddleware(t *testing.T) {
	var seenUser string
	handler := AuthMiddleware(stubVerifier{}, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = httputil.GetUserID(r)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		method   string
		path     string
		header   string
		wantCode int
		wantUser string
	}{
		{name: "valid token", method: http.MethodPost, path: "/api/chat", header: "Bearer good", wantCode: http.StatusNoContent, wantUser: "user-1"},
		{name: "lowercase scheme", method: http.MethodPost, path: "/api/chat", header: "bearer good", wantCode: http.StatusNoContent, wantUser: "user-1"},
		{name: "missing header", method: http.MethodPost, path: "/api/chat", wantCode: http.StatusUnauthorized},
		{name: "wrong scheme", method: http.MethodPost, path: "/api/chat", header: "Basic good", wantCode: http.StatusUnauthorized},
		{name: "invalid token", method: http.MethodGet, path: "/api/chat/c1/stream", header: "Bearer bad", wantCode: http.StatusUnauthorized},
		{name: "preflight", method: http.MethodOptions, path: "/api/chat", wantCode: http.StatusNoContent},
		{name: "health is public", method: http.MethodGet, path: "/health", wantCode: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seenUser = ""
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantUser, seenUser)
		})
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestRecovery_LogsRouteAndUser(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	}))

	req := httputil.WithUserID(httptest.NewRequest(http.MethodPost, "/api/chat", nil), "user-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var record map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &record))
	assert.Equal(t, "handler panicked", record["msg"])
	assert.Equal(t, "POST /api/chat", record["route"])
	assert.Equal(t, "user-1", record["user_id"])
	assert.Equal(t, "nil map write", record["panic"])
	assert.NotEmpty(t, record["stack"])
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	handler := Recovery(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/chat/c1/stream", nil))
	})
}
