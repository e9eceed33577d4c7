// Package auth provides bearer tokens for requests to the chat backend.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the bearer token attached to backend requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token returns the static token.
func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// RefreshFunc obtains a new access token.
type RefreshFunc func(ctx context.Context) (string, error)

// RefreshingToken caches an access token and refreshes it when its JWT exp
// claim falls within Skew of now. Tokens that are not JWTs or carry no exp
// are used until Invalidate is called.
type RefreshingToken struct {
	refresh RefreshFunc
	skew    time.Duration
	now     func() time.Time

	mu    sync.Mutex
	token string
}

// NewRefreshingToken creates a refreshing source seeded with initial, which
// may be empty.
func NewRefreshingToken(initial string, refresh RefreshFunc, skew time.Duration) *RefreshingToken {
	return &RefreshingToken{
		refresh: refresh,
		skew:    skew,
		now:     time.Now,
		token:   initial,
	}
}

// Token returns a valid token, refreshing it first when needed.
func (r *RefreshingToken) Token(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" && !r.expiring(r.token) {
		return r.token, nil
	}
	if r.refresh == nil {
		if r.token == "" {
			return "", errors.New("no token available")
		}
		return r.token, nil
	}

	token, err := r.refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	r.token = token
	return token, nil
}

// Invalidate drops the cached token so the next call refreshes.
func (r *RefreshingToken) Invalidate() {
	r.mu.Lock()
	r.token = ""
	r.mu.Unlock()
}

func (r *RefreshingToken) expiring(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !r.now().Add(r.skew).Before(exp.Time)
}

// HTTPRefresher returns a RefreshFunc that exchanges refreshToken for a new
// access token at url. The endpoint answers {"accessToken": "..."}.
func HTTPRefresher(httpClient *http.Client, url, refreshToken string) RefreshFunc {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return func(ctx context.Context) (string, error) {
		body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
		if err != nil {
			return "", err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("failed to create refresh request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("refresh request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("refresh rejected: %s", resp.Status)
		}

		var out struct {
			AccessToken string `json:"accessToken"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("failed to decode refresh response: %w", err)
		}
		if out.AccessToken == "" {
			return "", errors.New("refresh response carried no token")
		}
		return out.AccessToken, nil
	}
}
