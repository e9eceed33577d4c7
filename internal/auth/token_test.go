package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestRefreshingToken_ReusesFreshToken(t *testing.T) {
	fresh := signed(t, time.Now().Add(time.Hour))
	calls := 0
	src := NewRefreshingToken(fresh, func(context.Context) (string, error) {
		calls++
		return "new", nil
	}, time.Minute)

	got, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
	assert.Zero(t, calls)
}

func TestRefreshingToken_RefreshesExpiringToken(t *testing.T) {
	stale := signed(t, time.Now().Add(30*time.Second))
	next := signed(t, time.Now().Add(time.Hour))
	calls := 0
	src := NewRefreshingToken(stale, func(context.Context) (string, error) {
		calls++
		return next, nil
	}, time.Minute)

	got, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, next, got)

	got, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, next, got)
	assert.Equal(t, 1, calls)
}

func TestRefreshingToken_OpaqueTokenAndInvalidate(t *testing.T) {
	src := NewRefreshingToken("opaque", func(context.Context) (string, error) {
		return "", errors.New("boom")
	}, time.Minute)

	got, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opaque", got)

	src.Invalidate()
	_, err = src.Token(context.Background())
	require.Error(t, err)
}

func TestHTTPRefresher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["refreshToken"] != "rt" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"accessToken":"at-2"}`))
	}))
	defer server.Close()

	token, err := HTTPRefresher(server.Client(), server.URL, "rt")(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at-2", token)

	_, err = HTTPRefresher(server.Client(), server.URL, "wrong")(context.Background())
	require.Error(t, err)
}
