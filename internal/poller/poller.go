package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/boss-relay/internal/api"
	"github.com/rickgao/boss-relay/internal/encounter"
)

// BossSource looks up the running boss and issues join permissions.
// *api.Client implements it.
type BossSource interface {
	CurrentWorldBoss(ctx context.Context, token string) (*api.WorldBoss, error)
	Challenge(ctx context.Context, token, bossID string) (string, error)
}

// TokenSource supplies the service-account token. *auth.TokenSource
// implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate(token string)
}

// Joiner asks every live session to join the current encounter.
// *connection.Registry implements it.
type Joiner interface {
	JoinAll() int
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval (default: 5s)
	Timeout  time.Duration // Per-cycle timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// Poller periodically refreshes the shared encounter state.
type Poller struct {
	cfg    Config
	source BossSource
	tokens TokenSource
	state  *encounter.State
	joiner Joiner
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, source BossSource, tokens TokenSource, state *encounter.State, joiner Joiner, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:    cfg,
		source: source,
		tokens: tokens,
		state:  state,
		joiner: joiner,
		logger: logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("encounter poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("encounter poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollOnce()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce()
		}
	}
}

func (p *Poller) pollOnce() {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	if _, err := p.poll(ctx); err != nil && p.ctx.Err() == nil {
		p.logger.Warn("encounter poll failed", "error", err)
	}
}

// poll runs one cycle. It reports whether a new encounter was installed.
func (p *Poller) poll(ctx context.Context) (bool, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return false, err
	}

	boss, err := p.source.CurrentWorldBoss(ctx, token)
	if err != nil {
		p.checkToken(token, err)
		return false, err
	}
	if boss == nil {
		p.logger.Debug("no world boss running")
		return false, nil
	}

	cur := p.state.Current()
	if boss.ID == cur.BossID && cur.ChallengeID != "" {
		p.state.UpdateHP(boss.ID, boss.CurrentHP, boss.MaxHP)
		return false, nil
	}

	// A failed challenge leaves the state untouched so the next cycle retries.
	challengeID, err := p.source.Challenge(ctx, token, boss.ID)
	if err != nil {
		p.checkToken(token, err)
		return false, err
	}

	snap := p.state.Replace(boss.ID, challengeID, boss.Name)
	p.state.UpdateHP(boss.ID, boss.CurrentHP, boss.MaxHP)

	joined := p.joiner.JoinAll()
	p.logger.Info("new encounter",
		"boss", boss.ID,
		"name", boss.Name,
		"generation", snap.Generation,
		"sessions_joined", joined,
	)
	return true, nil
}

// checkToken drops a token the upstream rejected.
func (p *Poller) checkToken(token string, err error) {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.IsUnauthorized() {
		p.tokens.Invalidate(token)
	}
}
