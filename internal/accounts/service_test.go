package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/boss-relay/internal/connection"
	"github.com/rickgao/boss-relay/internal/encounter"
	"github.com/rickgao/boss-relay/internal/model"
	"github.com/rickgao/boss-relay/internal/store"
)

var errRejected = errors.New("wrong password")

// fakeAuth issues "<username>-token" unless the password is "bad".
type fakeAuth struct {
	calls atomic.Int32
	gate  chan struct{} // When set, Login blocks until closed
}

func (f *fakeAuth) Login(ctx context.Context, username, password string) (string, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if password == "bad" {
		return "", errRejected
	}
	return username + "-token", nil
}

// upstreamServer accepts sockets and reports every frame it receives.
func upstreamServer(t *testing.T) (string, <-chan string) {
	t.Helper()
	frames := make(chan string, 100)
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- string(msg)
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http"), frames
}

type fixture struct {
	svc      *Service
	auth     *fakeAuth
	store    *store.Memory
	registry *connection.Registry
	frames   <-chan string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	url, frames := upstreamServer(t)

	cfg := connection.DefaultSessionConfig()
	cfg.Client.URL = url
	cfg.JoinDelay = time.Hour

	f := &fixture{
		auth:     &fakeAuth{},
		store:    store.NewMemory(model.HistoryCapacity),
		registry: connection.NewRegistry(nil, nil),
		frames:   frames,
	}
	f.svc = NewService(cfg, Deps{
		Auth:      f.auth,
		Store:     f.store,
		Registry:  f.registry,
		Encounter: encounter.NewState(),
	})
	t.Cleanup(func() {
		f.svc.Close()
		f.registry.CloseAll()
	})
	return f
}

func (f *fixture) expectFrame(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-f.frames:
		if got != want {
			t.Fatalf("frame = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %q", want)
	}
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	creds := model.Credentials{Username: "alice", Password: "pw"}

	sess, err := f.svc.Login(context.Background(), "alice", creds)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if f.registry.Get("alice") != sess {
		t.Error("session not registered")
	}

	f.expectFrame(t, `40{"token":"alice-token"}`)

	rec, err := f.store.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != model.StatusOnline || rec.AuthToken != "alice-token" || rec.Credentials != creds {
		t.Errorf("record = %+v", rec)
	}
}

func TestLogin_RejectedLeavesNoRecord(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login(context.Background(), "mallory", model.Credentials{Username: "mallory", Password: "bad"})
	if !errors.Is(err, errRejected) {
		t.Fatalf("Login error = %v, want rejection", err)
	}

	if _, err := f.store.Get(context.Background(), "mallory"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("record written for rejected login: %v", err)
	}
	if f.registry.Get("mallory") != nil {
		t.Error("session registered for rejected login")
	}
}

func TestLogin_RejectedKeepsExistingRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orig := model.AccountRecord{
		AccountID:   "bob",
		Credentials: model.Credentials{Username: "bob", Password: "old"},
		AuthToken:   "old-token",
		Status:      model.StatusOffline,
	}
	f.store.Put(ctx, orig)

	if _, err := f.svc.Login(ctx, "bob", model.Credentials{Username: "bob", Password: "bad"}); err == nil {
		t.Fatal("Login succeeded with bad password")
	}

	rec, _ := f.store.Get(ctx, "bob")
	if rec.AuthToken != "old-token" || rec.Credentials.Password != "old" {
		t.Errorf("record changed by rejected login: %+v", rec)
	}
}

func TestLogin_InvalidInput(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Login(context.Background(), "x", model.Credentials{Username: "x"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("error = %v, want ErrInvalidCredentials", err)
	}
	if f.auth.calls.Load() != 0 {
		t.Error("upstream called for invalid input")
	}
}

func TestLogin_ConcurrentSingleSession(t *testing.T) {
	f := newFixture(t)
	f.auth.gate = make(chan struct{})
	creds := model.Credentials{Username: "carol", Password: "pw"}

	var wg sync.WaitGroup
	results := make([]*connection.Session, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Login(context.Background(), "carol", creds)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(f.auth.gate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Login %d: %v", i, err)
		}
	}
	if results[0] != results[1] {
		t.Error("concurrent logins produced two sessions")
	}
	if f.registry.OnlineCount() != 1 {
		t.Errorf("OnlineCount() = %d, want 1", f.registry.OnlineCount())
	}
	if n := f.auth.calls.Load(); n != 1 {
		t.Errorf("upstream logins = %d, want 1", n)
	}
}

func TestLogin_ReusesLiveSession(t *testing.T) {
	f := newFixture(t)
	creds := model.Credentials{Username: "dave", Password: "pw"}

	first, err := f.svc.Login(context.Background(), "dave", creds)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	second, err := f.svc.Login(context.Background(), "dave", creds)
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if first != second {
		t.Error("second Login replaced a live session with the same credentials")
	}
	if n := f.auth.calls.Load(); n != 1 {
		t.Errorf("upstream logins = %d, want 1", n)
	}
}

func TestLogin_NewPasswordReplacesSession(t *testing.T) {
	f := newFixture(t)

	first, _ := f.svc.Login(context.Background(), "erin", model.Credentials{Username: "erin", Password: "one"})
	second, err := f.svc.Login(context.Background(), "erin", model.Credentials{Username: "erin", Password: "two"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if first == second {
		t.Fatal("expected a new session")
	}
	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("replaced session was not closed")
	}
	if f.registry.Get("erin") != second {
		t.Error("registry does not hold the new session")
	}
}

func TestResume_DelaysConnect(t *testing.T) {
	f := newFixture(t)
	rec := model.AccountRecord{
		AccountID:   "bob",
		Credentials: model.Credentials{Username: "bob", Password: "pw"},
		Status:      model.StatusOnline,
	}
	f.store.Put(context.Background(), rec)

	sess, err := f.svc.Resume(context.Background(), rec, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got := sess.State(); got != connection.StateDisconnected {
		t.Errorf("State() before delay = %v, want disconnected", got)
	}
	f.expectFrame(t, `40{"token":"bob-token"}`)

	again, _ := f.svc.Resume(context.Background(), rec, 0)
	if again != sess {
		t.Error("Resume created a second session")
	}
}

func TestStopBattle(t *testing.T) {
	ctx := context.Background()

	t.Run("live session", func(t *testing.T) {
		f := newFixture(t)
		sess, _ := f.svc.Login(ctx, "alice", model.Credentials{Username: "alice", Password: "pw"})
		f.expectFrame(t, `40{"token":"alice-token"}`)

		if err := f.svc.StopBattle(ctx, "alice"); err != nil {
			t.Fatalf("StopBattle: %v", err)
		}
		<-sess.Done()
		rec, _ := f.store.Get(ctx, "alice")
		if !rec.StopRequested || rec.Status != model.StatusOffline {
			t.Errorf("record = %+v", rec)
		}
	})

	t.Run("stored only", func(t *testing.T) {
		f := newFixture(t)
		f.store.Put(ctx, model.AccountRecord{
			AccountID:   "bob",
			Credentials: model.Credentials{Username: "bob", Password: "pw"},
			Status:      model.StatusOnline,
		})
		if err := f.svc.StopBattle(ctx, "bob"); err != nil {
			t.Fatalf("StopBattle: %v", err)
		}
		rec, _ := f.store.Get(ctx, "bob")
		if !rec.StopRequested || rec.Status != model.StatusOffline {
			t.Errorf("record = %+v", rec)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		f := newFixture(t)
		if err := f.svc.StopBattle(ctx, "ghost"); !errors.Is(err, ErrUnknownAccount) {
			t.Errorf("error = %v, want ErrUnknownAccount", err)
		}
	})
}

func TestCheckPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.Put(ctx, model.AccountRecord{
		AccountID:   "bob",
		Credentials: model.Credentials{Username: "bob", Password: "pw"},
	})

	tests := []struct {
		id, password string
		want         error
	}{
		{"bob", "pw", nil},
		{"bob", "nope", ErrBadCredentials},
		{"ghost", "pw", ErrUnknownAccount},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.id, tt.password), func(t *testing.T) {
			if err := f.svc.CheckPassword(ctx, tt.id, tt.password); !errors.Is(err, tt.want) {
				t.Errorf("CheckPassword() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDrain(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.DrainEvents("ghost"); !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("DrainEvents(unknown) = %v, want ErrUnknownAccount", err)
	}

	f.svc.Login(context.Background(), "alice", model.Credentials{Username: "alice", Password: "pw"})
	f.expectFrame(t, `40{"token":"alice-token"}`)

	// The online line reaches the store after the session buffer.
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, _ := f.store.Get(context.Background(), "alice")
		if len(rec.RecentLogs) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("online log never recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	logs, err := f.svc.DrainLogs("alice")
	if err != nil {
		t.Fatalf("DrainLogs: %v", err)
	}
	if len(logs) != 1 || logs[0].Message != "alice online" {
		t.Errorf("DrainLogs() = %+v", logs)
	}
	if again, _ := f.svc.DrainLogs("alice"); len(again) != 0 {
		t.Errorf("second DrainLogs() = %+v, want empty", again)
	}

	rows, err := f.svc.DrainBattleRows("alice")
	if err != nil || len(rows) != 0 {
		t.Errorf("DrainBattleRows() = %v, %v", rows, err)
	}

	stats, ok := f.registry.Tracker().Get("alice")
	if !ok || stats.RequestCount != 3 {
		t.Errorf("tracker = %+v, want 3 requests", stats)
	}
}
