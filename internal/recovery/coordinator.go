package recovery

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/rickgao/boss-relay/internal/connection"
	"github.com/rickgao/boss-relay/internal/model"
	"github.com/rickgao/boss-relay/internal/store"
)

// Resumer re-authenticates a stored account and registers its session.
// *accounts.Service implements it.
type Resumer interface {
	Resume(ctx context.Context, rec model.AccountRecord, delay time.Duration) (*connection.Session, error)
}

// Config holds reconciliation settings.
type Config struct {
	HealInterval  time.Duration
	AccountDelay  time.Duration // Pause between accounts in one pass
	ConnectJitter time.Duration // Max random delay before connect
	MaxBackoff    time.Duration // Cap for repeated failures
}

// Report summarizes one reconciliation pass.
type Report struct {
	Total            int `json:"total"`
	Reconnected      int `json:"reconnected"`
	AlreadyConnected int `json:"alreadyConnected"`
	StopRequested    int `json:"stopRequested"`
	Offline          int `json:"offline"`
	Failed           int `json:"failed"`
	Deferred         int `json:"deferred"`
	Malformed        int `json:"malformed"`
	Cleaned          int `json:"cleaned"`
}

// Stats counts stored accounts against live sessions.
type Stats struct {
	TotalUsers        int `json:"totalUsers"`
	OnlineUsers       int `json:"onlineUsers"`
	OfflineUsers      int `json:"offlineUsers"`
	ActiveConnections int `json:"activeConnections"`
}

type outcome int

const (
	outcomeReconnected outcome = iota
	outcomeAlready
	outcomeStopped
	outcomeDeferred
	outcomeFailed
)

type backoff struct {
	failures int
	next     time.Time
}

// Coordinator runs the startup and periodic reconciliation passes.
type Coordinator struct {
	cfg      Config
	store    store.Store
	registry *connection.Registry
	resumer  Resumer
	logger   *slog.Logger

	now    func() time.Time
	jitter func(max time.Duration) time.Duration

	mu      sync.Mutex
	backoff map[string]*backoff

	// Lifecycle
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg Config, st store.Store, registry *connection.Registry, resumer Resumer, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:      cfg,
		store:    st,
		registry: registry,
		resumer:  resumer,
		logger:   logger,
		now:      time.Now,
		jitter:   randomDelay,
		backoff:  make(map[string]*backoff),
	}
}

func randomDelay(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}

// Recover reconnects every stored account marked online, then purges
// malformed records. Per-account failures are logged and counted; only a
// failure to list accounts is returned.
func (c *Coordinator) Recover(ctx context.Context) (Report, error) {
	var report Report

	ids, err := c.store.ListAllIDs(ctx)
	if err != nil {
		return report, err
	}
	report.Total = len(ids)
	c.logger.Info("recovering accounts", "count", len(ids))

	for i, id := range ids {
		if i > 0 && !sleep(ctx, c.cfg.AccountDelay) {
			return report, ctx.Err()
		}

		rec, ok := c.load(ctx, id, &report)
		if !ok {
			continue
		}
		if rec.Status != model.StatusOnline {
			report.Offline++
			continue
		}

		switch c.reconnect(ctx, rec, true) {
		case outcomeReconnected:
			report.Reconnected++
		case outcomeAlready:
			report.AlreadyConnected++
		case outcomeStopped:
			report.StopRequested++
		case outcomeFailed:
			report.Failed++
		}
	}

	cleaned, err := c.Cleanup(ctx)
	if err != nil {
		c.logger.Warn("cleanup failed", "error", err)
	}
	report.Cleaned = cleaned

	c.logger.Info("recovery complete",
		"total", report.Total,
		"reconnected", report.Reconnected,
		"already_connected", report.AlreadyConnected,
		"stop_requested", report.StopRequested,
		"offline", report.Offline,
		"failed", report.Failed,
		"cleaned", report.Cleaned,
	)
	return report, nil
}

// Heal reconnects accounts that are online in the store, or were reported
// dropped by their session, and have no live session.
func (c *Coordinator) Heal(ctx context.Context) (Report, error) {
	var report Report

	online, err := c.store.ListOnlineIDs(ctx)
	if err != nil {
		return report, err
	}
	ids := append(online, c.registry.TakeDropped()...)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	report.Total = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if s := c.registry.Get(id); s != nil && s.IsLive() {
			report.AlreadyConnected++
			continue
		}

		rec, ok := c.load(ctx, id, &report)
		if !ok {
			continue
		}
		if rec.StopRequested {
			report.StopRequested++
			continue
		}

		switch c.reconnect(ctx, rec, false) {
		case outcomeReconnected:
			report.Reconnected++
		case outcomeAlready:
			report.AlreadyConnected++
		case outcomeDeferred:
			report.Deferred++
			c.registry.MarkDropped(id)
		case outcomeFailed:
			report.Failed++
			// Failure marks the account offline; keep it a candidate.
			c.registry.MarkDropped(id)
		}

		if !sleep(ctx, c.cfg.AccountDelay) {
			return report, ctx.Err()
		}
	}

	if report.Reconnected > 0 || report.Failed > 0 {
		c.logger.Info("heal pass complete",
			"candidates", report.Total,
			"reconnected", report.Reconnected,
			"failed", report.Failed,
			"deferred", report.Deferred,
		)
	}
	return report, nil
}

// load fetches a record, counting malformed ones.
func (c *Coordinator) load(ctx context.Context, id string, report *Report) (model.AccountRecord, bool) {
	rec, err := c.store.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.logger.Warn("skipping account without record", "account", id)
		report.Malformed++
		return rec, false
	case err != nil:
		c.logger.Warn("load account failed", "account", id, "error", err)
		report.Failed++
		return rec, false
	case !rec.Valid():
		c.logger.Warn("skipping account without credentials", "account", id)
		report.Malformed++
		return rec, false
	}
	return rec, true
}

// reconnect resumes one account. At startup a stop request or failure marks
// the account offline; backoff applies only to periodic passes.
func (c *Coordinator) reconnect(ctx context.Context, rec model.AccountRecord, startup bool) outcome {
	id := rec.AccountID
	name := rec.Credentials.Username

	if s := c.registry.Get(id); s != nil && s.IsLive() {
		return outcomeAlready
	}

	if rec.StopRequested {
		c.markOffline(ctx, id, "%s stopped, not reconnecting", name)
		return outcomeStopped
	}

	if !startup && !c.due(id) {
		return outcomeDeferred
	}

	delay := c.jitter(c.cfg.ConnectJitter)
	if _, err := c.resumer.Resume(ctx, rec, delay); err != nil {
		wait := c.recordFailure(id)
		c.logger.Warn("reconnect failed", "account", id, "error", err, "retry_in", wait)
		c.markOffline(ctx, id, "%s reconnect failed, set offline: %v", name, err)
		return outcomeFailed
	}

	c.resetBackoff(id)
	c.appendLog(ctx, id, "%s reconnected", name)
	c.logger.Info("account reconnected", "account", id, "connect_delay", delay)
	return outcomeReconnected
}

func (c *Coordinator) markOffline(ctx context.Context, id, format string, args ...any) {
	if err := c.store.SetStatus(ctx, id, model.StatusOffline); err != nil {
		c.logger.Warn("persist offline status failed", "account", id, "error", err)
	}
	c.appendLog(ctx, id, format, args...)
}

func (c *Coordinator) appendLog(ctx context.Context, id, format string, args ...any) {
	if err := c.store.AppendLog(ctx, id, model.NewLogEntry(format, args...)); err != nil {
		c.logger.Warn("persist log failed", "account", id, "error", err)
	}
}

// due reports whether id's backoff window has passed.
func (c *Coordinator) due(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.backoff[id]
	return !ok || !c.now().Before(b.next)
}

// recordFailure doubles id's wait from HealInterval up to MaxBackoff.
func (c *Coordinator) recordFailure(id string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.backoff[id]
	if !ok {
		b = &backoff{}
		c.backoff[id] = b
	}
	b.failures++

	wait := c.cfg.HealInterval
	for i := 1; i < b.failures && (c.cfg.MaxBackoff <= 0 || wait < c.cfg.MaxBackoff); i++ {
		wait *= 2
	}
	if c.cfg.MaxBackoff > 0 && wait > c.cfg.MaxBackoff {
		wait = c.cfg.MaxBackoff
	}
	b.next = c.now().Add(wait)
	return wait
}

func (c *Coordinator) resetBackoff(id string) {
	c.mu.Lock()
	delete(c.backoff, id)
	c.mu.Unlock()
}

// Cleanup deletes records that lack credentials, and index entries without
// a record. It returns the number deleted.
func (c *Coordinator) Cleanup(ctx context.Context) (int, error) {
	ids, err := c.store.ListAllIDs(ctx)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, id := range ids {
		rec, err := c.store.Get(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			c.logger.Warn("cleanup: load account failed", "account", id, "error", err)
			continue
		case rec.Valid():
			continue
		}

		if err := c.store.Delete(ctx, id); err != nil {
			c.logger.Warn("cleanup: delete failed", "account", id, "error", err)
			continue
		}
		c.logger.Info("deleted invalid account", "account", id)
		cleaned++
	}
	return cleaned, nil
}

// Stats counts stored and live accounts.
func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	all, err := c.store.ListAllIDs(ctx)
	if err != nil {
		return Stats{}, err
	}
	online, err := c.store.ListOnlineIDs(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalUsers:        len(all),
		OnlineUsers:       len(online),
		OfflineUsers:      len(all) - len(online),
		ActiveConnections: c.registry.OnlineCount(),
	}, nil
}

// Start runs Heal every HealInterval until Stop.
func (c *Coordinator) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.healLoop(ctx)

	c.logger.Info("recovery loop started", "interval", c.cfg.HealInterval)
	return nil
}

// Stop ends the heal loop.
func (c *Coordinator) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("recovery loop stopped")
	case <-ctx.Done():
		c.logger.Warn("recovery loop stop timed out")
	}
	return nil
}

func (c *Coordinator) healLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HealInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Heal(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("heal pass failed", "error", err)
			}
		}
	}
}

// sleep waits d or until ctx is done. It reports false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
