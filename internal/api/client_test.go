package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://boss.example.com/")

		if c.baseURL != "https://boss.example.com" {
			t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("https://boss.example.com",
			WithTimeout(15*time.Second),
			WithRetries(10, 500*time.Millisecond),
			WithLogger(logger),
		)
		if c.httpClient.Timeout != 15*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 15*time.Second)
		}
		if c.maxRetries != 10 || c.retryBackoff != 500*time.Millisecond {
			t.Errorf("retries = %d/%v", c.maxRetries, c.retryBackoff)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("nil logger keeps default", func(t *testing.T) {
		c := NewClient("https://boss.example.com", WithLogger(nil))
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})
}

// TestAPIError tests error classification.
func TestAPIError(t *testing.T) {
	tests := []struct {
		status       int
		retryable    bool
		unauthorized bool
	}{
		{400, false, false},
		{401, false, true},
		{403, false, true},
		{429, true, false},
		{500, true, false},
		{503, true, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := &APIError{StatusCode: tt.status}
			if got := err.IsRetryable(); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
			if got := err.IsUnauthorized(); got != tt.unauthorized {
				t.Errorf("IsUnauthorized() = %v, want %v", got, tt.unauthorized)
			}
		})
	}
}

// TestDoRequest tests headers, bodies and error mapping.
func TestDoRequest(t *testing.T) {
	t.Run("sends token and JSON body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("Authorization header = %q", r.Header.Get("Authorization"))
			}
			if !strings.HasPrefix(r.Header.Get("User-Agent"), "boss-relay/") {
				t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
			}
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"a":1}` {
				t.Errorf("body = %q", body)
			}
			w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		body, err := c.doRequest(context.Background(), http.MethodPost, "/x", "tok", []byte(`{"a":1}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"ok":true}` {
			t.Errorf("body = %q", body)
		}
	})

	t.Run("no token no auth header", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				t.Errorf("Authorization header should be empty, got %q", r.Header.Get("Authorization"))
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		if _, err := c.doRequest(context.Background(), http.MethodGet, "/x", "", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("error body message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"boss not found"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		_, err := c.doRequest(context.Background(), http.MethodGet, "/x", "", nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 404 || apiErr.Message != "boss not found" {
			t.Errorf("APIError = %d %q", apiErr.StatusCode, apiErr.Message)
		}
	})
}

// TestDoWithRetry tests the retry logic.
func TestDoWithRetry(t *testing.T) {
	t.Run("retries on 503", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(3, 5*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/x", "", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("does not retry 400", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(3, 5*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/x", "", nil); err == nil {
			t.Fatal("expected error, got nil")
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(2, 5*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/x", "", nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected wrapped *APIError, got %v", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		want     string
		wantAuth bool
	}{
		{name: "success", status: 200, body: `{"token":"abc"}`, want: "abc"},
		{name: "error field", status: 200, body: `{"error":"wrong password"}`, wantAuth: true},
		{name: "401 with error", status: 401, body: `{"error":"wrong password"}`, wantAuth: true},
		{name: "empty token", status: 200, body: `{}`, wantAuth: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/api/auth/login" {
					t.Errorf("request = %s %s", r.Method, r.URL.Path)
				}
				var req LoginRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Errorf("decode body: %v", err)
				}
				if req.Username != "alice" || req.Password != "pw" {
					t.Errorf("credentials = %+v", req)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewClient(server.URL, WithRetries(0, time.Millisecond))
			got, err := c.Login(context.Background(), "alice", "pw")

			var authErr *AuthError
			if tt.wantAuth {
				if !errors.As(err, &authErr) {
					t.Fatalf("error = %v, want *AuthError", err)
				}
				if authErr.Username != "alice" {
					t.Errorf("AuthError.Username = %q", authErr.Username)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("token = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("server error is not an auth error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(0, time.Millisecond))
		_, err := c.Login(context.Background(), "alice", "pw")
		var authErr *AuthError
		if err == nil || errors.As(err, &authErr) {
			t.Errorf("error = %v, want non-auth error", err)
		}
	})
}

func TestCurrentWorldBoss(t *testing.T) {
	t.Run("running boss", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer svc" {
				t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
			}
			w.Write([]byte(`{"boss":{"_id":"b1","name":"Dragon","currentHp":50,"maxHp":100}}`))
		}))
		defer server.Close()

		boss, err := NewClient(server.URL).CurrentWorldBoss(context.Background(), "svc")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if boss == nil || boss.ID != "b1" || boss.Name != "Dragon" || boss.MaxHP != 100 {
			t.Errorf("boss = %+v", boss)
		}
	})

	t.Run("no boss", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"boss":null}`))
		}))
		defer server.Close()

		boss, err := NewClient(server.URL).CurrentWorldBoss(context.Background(), "svc")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if boss != nil {
			t.Errorf("boss = %+v, want nil", boss)
		}
	})
}

func TestChallenge(t *testing.T) {
	t.Run("granted", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/api/worldboss/b1/challenge" {
				t.Errorf("request = %s %s", r.Method, r.URL.Path)
			}
			w.Write([]byte(`{"success":true,"challengeId":"c9"}`))
		}))
		defer server.Close()

		id, err := NewClient(server.URL).Challenge(context.Background(), "svc", "b1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "c9" {
			t.Errorf("challengeId = %q, want c9", id)
		}
	})

	t.Run("declined", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":false,"message":"already challenged"}`))
		}))
		defer server.Close()

		_, err := NewClient(server.URL).Challenge(context.Background(), "svc", "b1")
		if !errors.Is(err, ErrNoChallenge) {
			t.Errorf("error = %v, want ErrNoChallenge", err)
		}
	})
}
