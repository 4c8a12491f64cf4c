package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/reelchain/internal/api/shared"
	"github.com/phrazzld/reelchain/internal/platform/logger"
	"github.com/phrazzld/reelchain/internal/service/auth"
)

type mockJWT struct {
	ValidateTokenFn func(ctx context.Context, token string) (*auth.Claims, error)
}

func (m *mockJWT) GenerateToken(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("not used")
}

func (m *mockJWT) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	return m.ValidateTokenFn(ctx, token)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	jwt := &mockJWT{ValidateTokenFn: func(_ context.Context, token string) (*auth.Claims, error) {
		switch token {
		case "good":
			return &auth.Claims{Subject: "operator", TokenType: auth.TokenTypeAccess}, nil
		case "expired":
			return nil, auth.ErrExpiredToken
		case "broken":
			return nil, errors.New("key store unavailable")
		default:
			return nil, auth.ErrInvalidToken
		}
	}}

	var gotSubject string
	h := NewAuthMiddleware(jwt).Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject, _ = shared.GetSubject(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"valid", "Bearer good", http.StatusNoContent, ""},
		{"lowercase scheme", "bearer good", http.StatusNoContent, ""},
		{"missing header", "", http.StatusUnauthorized, "Authorization header required"},
		{"wrong scheme", "Basic good", http.StatusUnauthorized, "Invalid authorization format"},
		{"no token", "Bearer ", http.StatusUnauthorized, "Invalid authorization format"},
		{"expired", "Bearer expired", http.StatusUnauthorized, "Token expired"},
		{"invalid", "Bearer forged", http.StatusUnauthorized, "Invalid token"},
		{"internal", "Bearer broken", http.StatusInternalServerError, "Authentication error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/chains", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.message != "" {
				var body shared.ErrorResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.Equal(t, tt.message, body.Error)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "operator", gotSubject)
}

func TestTraceMiddleware(t *testing.T) {
	t.Parallel()

	base, buf := logger.GetTestLogger(t)
	var traceID string
	h := NewTraceMiddleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("inside handler")
		shared.RespondWithError(w, r, http.StatusBadRequest, "nope")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.NotEmpty(t, traceID)
	assert.Equal(t, traceID, rec.Header().Get("X-Trace-ID"))

	var body shared.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, traceID, body.TraceID)

	entries, err := buf.Entries()
	require.NoError(t, err)
	var found bool
	for _, e := range entries {
		if e["msg"] == "inside handler" {
			found = true
			assert.Equal(t, traceID, e["trace_id"])
		}
	}
	assert.True(t, found)
}
