package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rickgao/boss-relay/internal/accounts"
	"github.com/rickgao/boss-relay/internal/api"
	"github.com/rickgao/boss-relay/internal/metrics"
	"github.com/rickgao/boss-relay/internal/model"
	"github.com/rickgao/boss-relay/internal/recovery"
)

// credentialsRequest is the body of /login and /stopbattle.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, accounts.ErrInvalidCredentials.Error())
		return req, false
	}
	return req, true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	creds := model.Credentials{Username: req.Username, Password: req.Password}
	if _, err := s.accounts.Login(r.Context(), req.Username, creds); err != nil {
		var authErr *api.AuthError
		switch {
		case errors.As(err, &authErr):
			writeError(w, http.StatusUnauthorized, authErr.Reason)
		case errors.Is(err, accounts.ErrInvalidCredentials):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Warn("login failed", "account", req.Username, "error", err)
			writeError(w, http.StatusBadGateway, "login failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged in"})
}

func (s *Server) handleStopBattle(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	err := s.accounts.CheckPassword(r.Context(), req.Username, req.Password)
	if err == nil {
		err = s.accounts.StopBattle(r.Context(), req.Username)
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"message": "battle stopped"})
	case errors.Is(err, accounts.ErrBadCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, accounts.ErrUnknownAccount):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Warn("stop battle failed", "account", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "stop failed")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Components: make(map[string]any),
	}

	if err := s.store.Ping(ctx); err != nil {
		health.Status = "unhealthy"
		health.Components["store"] = map[string]string{
			"status": "disconnected",
			"error":  err.Error(),
		}
	} else {
		health.Components["store"] = "connected"
	}

	if s.tracker != nil {
		health.Components["sessions"] = len(s.tracker.All())
	}

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	users, err := s.stats.Stats(ctx)
	if err != nil {
		s.logger.Warn("stats failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "stats unavailable")
		return
	}

	resp := struct {
		recovery.Stats
		Connections []metrics.Stats `json:"connections"`
	}{Stats: users, Connections: []metrics.Stats{}}
	if s.tracker != nil {
		resp.Connections = s.tracker.All()
	}
	writeJSON(w, http.StatusOK, resp)
}
