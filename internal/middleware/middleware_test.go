package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func TestAuth(t *testing.T) {
	var seenUser string
	var seenAccess bool
	handler := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = GetUserID(r.Context())
		seenAccess = CanAccessProject(r.Context(), "p1")
		w.WriteHeader(http.StatusNoContent)
	}))

	valid := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Projects:         []string{"p2"},
	})
	expired := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	})

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"malformed", "Token abc", "", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, "", http.StatusUnauthorized},
		{"valid header", "Bearer " + valid, "", http.StatusNoContent},
		{"valid query", "", "?access_token=" + valid, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, "u1", seenUser)
	assert.False(t, seenAccess)
}

func TestAuth_DisabledWithoutSecret(t *testing.T) {
	handler := Auth("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, CanAccessProject(r.Context(), "any"))
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/send", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestLogging_SetsCorrelationID(t *testing.T) {
	var fromCtx string
	handler := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "abc")
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "abc", rec.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "abc", fromCtx)
}

func TestValidation(t *testing.T) {
	assert.Error(t, ValidateMessageContent("  ", false))
	assert.NoError(t, ValidateMessageContent("  ", true))
	assert.NoError(t, ValidateMessageContent("hello", false))
	assert.Error(t, ValidateMessageContent(strings.Repeat("a", maxContentBytes+1), false))
	assert.Error(t, ValidateMessageContent("\xff", false))

	assert.NoError(t, ValidateID("thread", "t-1"))
	assert.Error(t, ValidateID("thread", ""))
	assert.Error(t, ValidateID("thread", "a/b"))

	assert.NoError(t, ValidateTitle(strings.Repeat("é", maxTitleLength)))
	assert.Error(t, ValidateTitle(strings.Repeat("é", maxTitleLength+1)))
}
