// Package auth holds the service-account credentials used for upstream REST
// calls that are not tied to a relayed account, and caches its token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrNoCredentials is returned when the service account is not configured.
var ErrNoCredentials = errors.New("service account credentials are required")

// Credentials holds the service account login.
type Credentials struct {
	Username string
	Password string
}

// LoadCredentials validates and returns service account credentials.
func LoadCredentials(username, password string) (*Credentials, error) {
	if username == "" || password == "" {
		return nil, ErrNoCredentials
	}
	return &Credentials{Username: username, Password: password}, nil
}

// Loginer exchanges credentials for a token. *api.Client implements it.
type Loginer interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// TokenSource returns a cached service-account token, logging in on demand.
type TokenSource struct {
	creds  *Credentials
	login  Loginer
	logger *slog.Logger

	mu       sync.Mutex
	token    string
	issuedAt time.Time
}

// NewTokenSource creates a token source for creds.
func NewTokenSource(creds *Credentials, login Loginer, logger *slog.Logger) *TokenSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenSource{creds: creds, login: login, logger: logger}
}

// Token returns the cached token or logs in to obtain a new one.
// Concurrent callers share one login.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" {
		return ts.token, nil
	}

	token, err := ts.login.Login(ctx, ts.creds.Username, ts.creds.Password)
	if err != nil {
		return "", fmt.Errorf("service account login: %w", err)
	}
	ts.token = token
	ts.issuedAt = time.Now()
	ts.logger.Info("service account logged in", "username", ts.creds.Username)
	return token, nil
}

// Invalidate drops token if it is still the cached one, forcing the next
// Token call to log in again.
func (ts *TokenSource) Invalidate(token string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token == token {
		ts.token = ""
		ts.logger.Debug("service account token invalidated", "age", time.Since(ts.issuedAt))
	}
}
