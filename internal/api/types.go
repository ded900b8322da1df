package api

import (
	"errors"
	"fmt"
)

// ErrNoChallenge is returned when the upstream declines to issue a challenge.
var ErrNoChallenge = errors.New("challenge not granted")

// AuthError means the upstream rejected the credentials.
type AuthError struct {
	Username string
	Reason   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login %s rejected: %s", e.Username, e.Reason)
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by POST /api/auth/login.
type LoginResponse struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

// WorldBoss describes the boss currently running upstream.
type WorldBoss struct {
	ID        string  `json:"_id"`
	Name      string  `json:"name"`
	CurrentHP float64 `json:"currentHp"`
	MaxHP     float64 `json:"maxHp"`
}

// CurrentWorldBossResponse is returned by GET /api/worldboss/current.
type CurrentWorldBossResponse struct {
	Boss *WorldBoss `json:"boss"`
}

// ChallengeResponse is returned by POST /api/worldboss/{id}/challenge.
type ChallengeResponse struct {
	Success     bool   `json:"success"`
	ChallengeID string `json:"challengeId"`
	Message     string `json:"message"`
}
