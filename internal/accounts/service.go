// Package accounts is the single path through which sessions are created,
// shared by interactive logins and the recovery loop.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/boss-relay/internal/connection"
	"github.com/rickgao/boss-relay/internal/encounter"
	"github.com/rickgao/boss-relay/internal/model"
	"github.com/rickgao/boss-relay/internal/store"
)

var (
	// ErrUnknownAccount is returned for ids with no session and no record.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrBadCredentials is returned when a password does not match.
	ErrBadCredentials = errors.New("username or password mismatch")

	// ErrInvalidCredentials is returned when username or password is empty.
	ErrInvalidCredentials = errors.New("username and password are required")
)

// Authenticator exchanges credentials for an upstream token.
// *api.Client implements it.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// Deps are the Service's collaborators.
type Deps struct {
	Auth      Authenticator
	Store     store.Store
	Registry  *connection.Registry
	Encounter *encounter.State
	Archiver  connection.Archiver // Optional
	Logger    *slog.Logger
}

// Service creates, stops and drains sessions.
type Service struct {
	cfg       connection.SessionConfig
	auth      Authenticator
	store     store.Store
	registry  *connection.Registry
	encounter *encounter.State
	archiver  connection.Archiver
	logger    *slog.Logger

	logins singleflight.Group

	// Pending delayed connects
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a Service.
func NewService(cfg connection.SessionConfig, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:       cfg,
		auth:      deps.Auth,
		store:     deps.Store,
		registry:  deps.Registry,
		encounter: deps.Encounter,
		archiver:  deps.Archiver,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Login authenticates an account upstream, persists it as online and
// registers a new session that connects immediately. A live session with the
// same credentials is returned as-is. Concurrent logins for one id share a
// single attempt. Rejected credentials leave durable state untouched.
func (s *Service) Login(ctx context.Context, id string, creds model.Credentials) (*connection.Session, error) {
	if id == "" || creds.Username == "" || creds.Password == "" {
		return nil, ErrInvalidCredentials
	}
	return s.establish(ctx, id, creds, 0)
}

// Resume re-authenticates a stored account and schedules its connect after
// delay. An account that already has a live session is returned unchanged.
func (s *Service) Resume(ctx context.Context, rec model.AccountRecord, delay time.Duration) (*connection.Session, error) {
	if !rec.Valid() {
		return nil, ErrInvalidCredentials
	}
	if existing := s.registry.Get(rec.AccountID); existing != nil && existing.IsLive() {
		return existing, nil
	}
	return s.establish(ctx, rec.AccountID, rec.Credentials, delay)
}

func (s *Service) establish(ctx context.Context, id string, creds model.Credentials, delay time.Duration) (*connection.Session, error) {
	v, err, shared := s.logins.Do(id, func() (any, error) {
		return s.login(ctx, id, creds, delay)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("login collapsed with in-flight attempt", "account", id)
	}
	return v.(*connection.Session), nil
}

func (s *Service) login(ctx context.Context, id string, creds model.Credentials, delay time.Duration) (*connection.Session, error) {
	if existing := s.registry.Get(id); existing != nil && existing.IsLive() && existing.Credentials() == creds {
		return existing, nil
	}

	token, err := s.auth.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		rec = model.AccountRecord{AccountID: id}
	case err != nil:
		return nil, fmt.Errorf("load account %s: %w", id, err)
	}

	rec.Credentials = creds
	rec.AuthToken = token
	rec.Status = model.StatusOnline
	rec.StopRequested = false
	if err := s.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("save account %s: %w", id, err)
	}

	sess := connection.NewSession(id, creds, token, s.cfg, connection.SessionDeps{
		Store:     s.store,
		Encounter: s.encounter,
		Registry:  s.registry,
		Archiver:  s.archiver,
		Logger:    s.logger,
	})
	if prev := s.registry.Add(id, sess); prev != nil && prev != sess {
		prev.Close()
	}

	s.scheduleConnect(sess, delay)
	s.logger.Info("account logged in", "account", id, "connect_delay", delay)
	return sess, nil
}

// scheduleConnect connects sess after delay on a background goroutine.
func (s *Service) scheduleConnect(sess *connection.Session, delay time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if delay > 0 {
			t := time.NewTimer(delay)
			defer t.Stop()
			select {
			case <-s.ctx.Done():
				return
			case <-t.C:
			}
		}

		if err := sess.Connect(s.ctx); err != nil && !errors.Is(err, connection.ErrSessionClosed) {
			s.logger.Warn("connect failed", "account", sess.AccountID(), "error", err)
		}
	}()
}

// StopBattle stops an account's session and suppresses reconnection. An
// account without a live session is marked stopped durably.
func (s *Service) StopBattle(ctx context.Context, id string) error {
	if sess := s.registry.Get(id); sess != nil {
		return sess.Stop(ctx)
	}

	if err := s.store.SetStopRequested(ctx, id, true); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownAccount
		}
		return fmt.Errorf("stop %s: %w", id, err)
	}
	if err := s.store.SetStatus(ctx, id, model.StatusOffline); err != nil {
		s.logger.Warn("persist offline status failed", "account", id, "error", err)
	}
	return nil
}

// CheckPassword verifies password against the live session, or the stored
// record when the account is not connected.
func (s *Service) CheckPassword(ctx context.Context, id, password string) error {
	if sess := s.registry.Get(id); sess != nil {
		if sess.Credentials().Password != password {
			return ErrBadCredentials
		}
		return nil
	}

	rec, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUnknownAccount
	}
	if err != nil {
		return fmt.Errorf("load account %s: %w", id, err)
	}
	if rec.Credentials.Password != password {
		return ErrBadCredentials
	}
	return nil
}

// DrainEvents returns the battle steps received since the last drain.
func (s *Service) DrainEvents(id string) ([]model.Event, error) {
	sess := s.registry.Get(id)
	if sess == nil {
		return nil, ErrUnknownAccount
	}
	s.registry.Touch(id)
	return sess.DrainEvents(), nil
}

// DrainLogs returns the log lines recorded since the last drain.
func (s *Service) DrainLogs(id string) ([]model.LogEntry, error) {
	sess := s.registry.Get(id)
	if sess == nil {
		return nil, ErrUnknownAccount
	}
	s.registry.Touch(id)
	return sess.DrainLogs(), nil
}

// DrainBattleRows drains battle steps formatted as viewer rows.
func (s *Service) DrainBattleRows(id string) ([][]any, error) {
	sess := s.registry.Get(id)
	if sess == nil {
		return nil, ErrUnknownAccount
	}
	events, err := s.DrainEvents(id)
	if err != nil {
		return nil, err
	}
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		if row, ok := model.StepRow(e, sess.Username()); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// Close cancels pending connects and waits for them to finish.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}
