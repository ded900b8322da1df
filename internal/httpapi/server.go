// Package httpapi serves the relay's HTTP surface: account login and stop,
// health and statistics, and the viewer WebSocket.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rickgao/boss-relay/internal/connection"
	"github.com/rickgao/boss-relay/internal/metrics"
	"github.com/rickgao/boss-relay/internal/model"
	"github.com/rickgao/boss-relay/internal/recovery"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Accounts is the account surface used by the handlers.
// *accounts.Service implements it.
type Accounts interface {
	Login(ctx context.Context, id string, creds model.Credentials) (*connection.Session, error)
	StopBattle(ctx context.Context, id string) error
	CheckPassword(ctx context.Context, id, password string) error
	DrainBattleRows(id string) ([][]any, error)
	DrainLogs(id string) ([]model.LogEntry, error)
}

// StatsSource reports account counts. *recovery.Coordinator implements it.
type StatsSource interface {
	Stats(ctx context.Context) (recovery.Stats, error)
}

// Pinger checks a backing service. store.Store implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the Server's collaborators.
type Deps struct {
	Accounts Accounts
	Stats    StatsSource
	Store    Pinger
	Tracker  *metrics.Tracker // Optional
	Logger   *slog.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	accounts Accounts
	stats    StatsSource
	store    Pinger
	tracker  *metrics.Tracker
	logger   *slog.Logger
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		accounts: deps.Accounts,
		stats:    deps.Stats,
		store:    deps.Store,
		tracker:  deps.Tracker,
		logger:   logger,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /stopbattle", s.handleStopBattle)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /ws", s.handleViewer)
	return withCORS(mux)
}

// withCORS allows browser clients from any origin.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
