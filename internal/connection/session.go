package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/boss-relay/internal/encounter"
	"github.com/rickgao/boss-relay/internal/model"
	"github.com/rickgao/boss-relay/internal/router"
	"github.com/rickgao/boss-relay/internal/store"
)

// Session owns one account's upstream connection.
type Session struct {
	accountID string
	instance  uuid.UUID
	creds     model.Credentials
	token     string

	cfg       SessionConfig
	store     store.Store
	encounter *encounter.State
	registry  *Registry
	archiver  Archiver
	logger    *slog.Logger

	// Since-last-drained buffers
	events *router.Ring[model.Event]
	logs   *router.Ring[model.LogEntry]

	joinReq chan struct{}
	done    chan struct{}

	flagMu sync.Mutex // Orders durable stop-flag writes

	mu      sync.Mutex
	state   State
	started bool
	closed  bool
	stopped bool
	cancel  context.CancelCauseFunc
}

// SessionDeps are the collaborators shared by every Session.
type SessionDeps struct {
	Store     store.Store
	Encounter *encounter.State
	Registry  *Registry
	Archiver  Archiver // Optional
	Logger    *slog.Logger
}

// NewSession creates a disconnected session for an account using token for
// the upstream handshake.
func NewSession(accountID string, creds model.Credentials, token string, cfg SessionConfig, deps SessionDeps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	capacity := cfg.HistoryCapacity
	if capacity < 1 {
		capacity = model.HistoryCapacity
	}

	instance := uuid.New()
	return &Session{
		accountID: accountID,
		instance:  instance,
		creds:     creds,
		token:     token,
		cfg:       cfg,
		store:     deps.Store,
		encounter: deps.Encounter,
		registry:  deps.Registry,
		archiver:  deps.Archiver,
		logger:    logger.With("account", accountID, "session", instance.String()[:8]),
		events:    router.NewRing[model.Event](capacity),
		logs:      router.NewRing[model.LogEntry](capacity),
		joinReq:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// AccountID returns the account this session belongs to.
func (s *Session) AccountID() string { return s.accountID }

// Instance returns the unique id of this session object.
func (s *Session) Instance() uuid.UUID { return s.instance }

// Username returns the upstream username.
func (s *Session) Username() string { return s.creds.Username }

// Credentials returns the credentials the session was created with.
func (s *Session) Credentials() model.Credentials { return s.creds }

// Done is closed once the session has disconnected for good.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsLive reports whether the session has not yet disconnected.
func (s *Session) IsLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Connect dials the upstream, authenticates and starts the run loop.
// A session can be connected only once.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrSessionStarted
	}
	s.started = true
	s.state = StateConnecting
	s.mu.Unlock()

	c := NewClient(s.cfg.Client, s.logger)
	if err := c.Connect(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			// Caller is shutting down, so recovery still sees the account online.
			s.finish(nil, ErrSessionClosed)
			return ErrSessionClosed
		}
		s.logger.Warn("dial failed", "error", err)
		s.finish(nil, err)
		return err
	}

	// The auth frame must precede every other outbound frame.
	if err := c.Send(router.AuthFrame(s.token)); err != nil {
		s.logger.Warn("send auth failed", "error", err)
		s.finish(c, err)
		return err
	}

	s.clearStopFlag()

	runCtx, cancel := context.WithCancelCause(context.Background())

	s.mu.Lock()
	if s.closed {
		// Stopped or closed while dialing.
		s.mu.Unlock()
		cancel(nil)
		c.Close()
		return ErrSessionClosed
	}
	s.cancel = cancel
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.appendLog("%s online", s.creds.Username)
	s.logger.Info("session authenticated")

	go s.run(runCtx, c)
	return nil
}

// RequestJoin asks the run loop to send a join now. It never blocks.
func (s *Session) RequestJoin() {
	select {
	case s.joinReq <- struct{}{}:
	default:
	}
}

// Stop durably records a user stop request and disconnects. Automatic
// reconnection stays suppressed until the next successful login.
func (s *Session) Stop(ctx context.Context) error {
	s.flagMu.Lock()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	err := s.store.SetStopRequested(ctx, s.accountID, true)
	s.flagMu.Unlock()
	if err != nil {
		s.logger.Warn("persist stop flag failed", "error", err)
	}

	s.shutdown(ErrStopRequested)
	return err
}

// Close disconnects without touching durable state. Used when the session
// is replaced and at shutdown, so that recovery reconnects after restart.
func (s *Session) Close() {
	s.shutdown(ErrSessionClosed)
}

// shutdown ends the run loop with cause, or finishes directly when the run
// loop has not started.
func (s *Session) shutdown(cause error) {
	s.mu.Lock()
	cancel := s.cancel
	claimed := cancel == nil && s.claimLocked()
	stopped := s.stopped
	s.mu.Unlock()

	switch {
	case cancel != nil:
		cancel(cause)
		<-s.done
	case claimed:
		s.cleanup(nil, cause, stopped)
	}
}

// clearStopFlag durably clears the stop flag unless a stop raced the
// connect. flagMu orders this write against Stop's.
func (s *Session) clearStopFlag() {
	s.flagMu.Lock()
	defer s.flagMu.Unlock()

	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}

	ctx, cancel := storeContext(s.cfg.StoreTimeout)
	defer cancel()
	if err := s.store.SetStopRequested(ctx, s.accountID, false); err != nil {
		s.logger.Warn("clear stop flag failed", "error", err)
	}
}

// DrainEvents returns battle steps received since the last drain, oldest first.
func (s *Session) DrainEvents() []model.Event {
	return s.events.Drain()
}

// DrainLogs returns log lines recorded since the last drain, oldest first.
func (s *Session) DrainLogs() []model.LogEntry {
	return s.logs.Drain()
}

// run processes inbound frames, join timers and cancellation in order.
func (s *Session) run(ctx context.Context, c Client) {
	joinTimer := time.NewTimer(s.cfg.JoinDelay)
	defer joinTimer.Stop()

	interval := s.cfg.JoinInterval
	if interval <= 0 {
		interval = DefaultSessionConfig().JoinInterval
	}
	resend := time.NewTicker(interval)
	defer resend.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finish(c, context.Cause(ctx))
			return

		case err := <-c.Errors():
			s.logger.Warn("connection error", "error", err)
			s.finish(c, err)
			return

		case msg := <-c.Messages():
			s.handle(c, msg)

		case <-joinTimer.C:
			s.join(c)

		case <-resend.C:
			s.join(c)

		case <-s.joinReq:
			s.join(c)
		}
	}
}

// handle dispatches one inbound frame.
func (s *Session) handle(c Client, msg TimestampedMessage) {
	m := router.Route(msg.Data, msg.ReceivedAt)

	switch m.Kind {
	case router.KindPing:
		if err := c.Send([]byte(router.FramePong)); err != nil {
			s.logger.Debug("send pong failed", "error", err)
		}

	case router.KindHPUpdate:
		s.encounter.UpdateHP(m.HP.BossID, m.HP.CurrentHP, m.HP.MaxHP)

	case router.KindBattleStep:
		e := model.Event{
			Name:       m.Event,
			CapturedAt: m.ReceivedAt,
			Payload:    m.Payload,
		}
		s.events.Push(e)

		ctx, cancel := storeContext(s.cfg.StoreTimeout)
		if err := s.store.AppendEvent(ctx, s.accountID, e); err != nil {
			s.logger.Warn("persist battle step failed", "error", err)
		}
		cancel()

		if s.archiver != nil {
			s.archiver.Archive(s.accountID, s.encounter.Current().BossID, e)
		}

	case router.KindLeaderboard:
		s.encounter.SetLeaderboard(m.Payload)
	}
}

// join sends startWorldBossBattle for the current encounter. Nothing is sent
// when no challenge is known or the snapshot was replaced while building the
// frame.
func (s *Session) join(c Client) {
	snap := s.encounter.Current()
	if !snap.Joinable() {
		s.logger.Debug("no joinable encounter yet")
		return
	}

	frame, err := router.EventFrame(router.EventStartBattle, router.JoinPayload{
		WorldBossID: snap.BossID,
		ChallengeID: snap.ChallengeID,
	})
	if err != nil {
		s.logger.Error("build join frame failed", "error", err)
		return
	}

	if !s.encounter.IsCurrent(snap.Generation) {
		s.logger.Debug("encounter replaced, skipping join", "generation", snap.Generation)
		return
	}

	if err := c.Send(frame); err != nil {
		s.logger.Warn("send join failed", "error", err)
		return
	}

	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()

	name := snap.Name
	if name == "" {
		name = snap.BossID
	}
	s.appendLog("%s joining world boss %s", s.creds.Username, name)
}

// finish moves the session to Disconnected exactly once.
func (s *Session) finish(c Client, cause error) {
	s.mu.Lock()
	claimed := s.claimLocked()
	stopped := s.stopped
	s.mu.Unlock()

	if !claimed {
		if c != nil {
			c.Close()
		}
		return
	}
	s.cleanup(c, cause, stopped || errors.Is(cause, ErrStopRequested))
}

// claimLocked marks the session closed. It reports false if another caller
// already did. s.mu must be held.
func (s *Session) claimLocked() bool {
	if s.closed {
		return false
	}
	s.closed = true
	s.state = StateDisconnected
	return true
}

// cleanup runs once per session after a successful claim. Drops and stops
// are written through to the store; ErrSessionClosed leaves durable state
// alone.
func (s *Session) cleanup(c Client, cause error, stopped bool) {
	defer close(s.done)

	if c != nil {
		c.Close()
	}

	if errors.Is(cause, ErrSessionClosed) {
		s.registry.RemoveIf(s.accountID, s)
		s.logger.Info("session closed")
		return
	}

	ctx, cancel := storeContext(s.cfg.StoreTimeout)
	if err := s.store.SetStatus(ctx, s.accountID, model.StatusOffline); err != nil {
		s.logger.Warn("persist offline status failed", "error", err)
	}
	cancel()

	if stopped {
		s.appendLog("%s stopped", s.creds.Username)
	} else {
		s.appendLog("%s offline", s.creds.Username)
	}

	s.registry.RemoveIf(s.accountID, s)
	if !stopped {
		s.registry.MarkDropped(s.accountID)
	}

	s.logger.Info("session disconnected", "stopped", stopped, "cause", cause)
}

// appendLog records a line in the transient buffer and the durable history.
func (s *Session) appendLog(format string, args ...any) {
	entry := model.NewLogEntry(format, args...)
	s.logs.Push(entry)

	ctx, cancel := storeContext(s.cfg.StoreTimeout)
	defer cancel()
	if err := s.store.AppendLog(ctx, s.accountID, entry); err != nil {
		s.logger.Warn("persist log failed", "error", err)
	}
}
