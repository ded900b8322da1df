package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// Login exchanges credentials for a session token. Rejected credentials
// yield *AuthError; transport and 5xx failures are returned as-is.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp LoginResponse
	err := c.post(ctx, "/api/auth/login", "", LoginRequest{Username: username, Password: password}, &resp)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests {
		return "", &AuthError{Username: username, Reason: apiErr.Message}
	}
	if err != nil {
		return "", fmt.Errorf("login %s: %w", username, err)
	}

	if resp.Error != "" {
		return "", &AuthError{Username: username, Reason: resp.Error}
	}
	if resp.Token == "" {
		return "", &AuthError{Username: username, Reason: "empty token"}
	}
	return resp.Token, nil
}

// CurrentWorldBoss returns the running boss, or nil if none is running.
func (c *Client) CurrentWorldBoss(ctx context.Context, token string) (*WorldBoss, error) {
	var resp CurrentWorldBossResponse
	if err := c.get(ctx, "/api/worldboss/current", token, &resp); err != nil {
		return nil, fmt.Errorf("get current world boss: %w", err)
	}
	if resp.Boss == nil || resp.Boss.ID == "" {
		return nil, nil
	}
	return resp.Boss, nil
}

// Challenge requests a challenge id for the given boss.
func (c *Client) Challenge(ctx context.Context, token, bossID string) (string, error) {
	var resp ChallengeResponse
	path := "/api/worldboss/" + url.PathEscape(bossID) + "/challenge"
	if err := c.post(ctx, path, token, nil, &resp); err != nil {
		return "", fmt.Errorf("challenge %s: %w", bossID, err)
	}
	if !resp.Success || resp.ChallengeID == "" {
		if resp.Message != "" {
			return "", fmt.Errorf("challenge %s: %w: %s", bossID, ErrNoChallenge, resp.Message)
		}
		return "", fmt.Errorf("challenge %s: %w", bossID, ErrNoChallenge)
	}
	return resp.ChallengeID, nil
}
