package encounter

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// Snapshot is an immutable view of the current encounter.
type Snapshot struct {
	Generation  uint64 // Increments on every identity replacement
	BossID      string
	ChallengeID string // Join permission issued by the upstream
	Name        string
	CurrentHP   float64
	MaxHP       float64
	UpdatedAt   time.Time
}

// Joinable reports whether the snapshot carries enough to build a join frame.
func (s Snapshot) Joinable() bool {
	return s.BossID != "" && s.ChallengeID != ""
}

// State is the shared encounter state. Safe for concurrent use.
type State struct {
	cur         atomic.Pointer[Snapshot]
	leaderboard atomic.Pointer[json.RawMessage]
}

// NewState creates an empty state at generation 0.
func NewState() *State {
	s := &State{}
	s.cur.Store(&Snapshot{})
	return s
}

// Current returns the current snapshot.
func (s *State) Current() Snapshot {
	return *s.cur.Load()
}

// IsCurrent reports whether gen is still the current generation.
func (s *State) IsCurrent(gen uint64) bool {
	return s.cur.Load().Generation == gen
}

// Replace installs a new encounter identity. Counters reset; the returned
// snapshot carries the new generation.
func (s *State) Replace(bossID, challengeID, name string) Snapshot {
	for {
		old := s.cur.Load()
		next := &Snapshot{
			Generation:  old.Generation + 1,
			BossID:      bossID,
			ChallengeID: challengeID,
			Name:        name,
			UpdatedAt:   time.Now(),
		}
		if old.BossID == bossID {
			// Same boss re-issued: keep last known counters.
			next.CurrentHP = old.CurrentHP
			next.MaxHP = old.MaxHP
		}
		if s.cur.CompareAndSwap(old, next) {
			return *next
		}
	}
}

// UpdateHP applies a counter update. Updates naming a boss other than the
// current one are ignored (returns false); an empty bossID applies to whatever
// is current.
func (s *State) UpdateHP(bossID string, currentHP, maxHP float64) bool {
	for {
		old := s.cur.Load()
		if bossID != "" && old.BossID != "" && bossID != old.BossID {
			return false
		}
		next := *old
		if next.BossID == "" {
			next.BossID = bossID
		}
		next.CurrentHP = currentHP
		next.MaxHP = maxHP
		next.UpdatedAt = time.Now()
		if s.cur.CompareAndSwap(old, &next) {
			return true
		}
	}
}

// SetLeaderboard replaces the leaderboard snapshot wholesale.
func (s *State) SetLeaderboard(raw json.RawMessage) {
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	s.leaderboard.Store(&cp)
}

// Leaderboard returns the latest leaderboard payload, or nil if none was seen.
func (s *State) Leaderboard() json.RawMessage {
	p := s.leaderboard.Load()
	if p == nil {
		return nil
	}
	return *p
}
