package metrics

import (
	"sort"
	"sync"
	"time"
)

// Stats is a point-in-time view of one account's connection counters.
type Stats struct {
	AccountID       string        `json:"accountId"`
	Username        string        `json:"username"`
	ConnectedAt     time.Time     `json:"connectedAt"`
	RequestCount    int64         `json:"requestCount"`
	LastActivityAt  time.Time     `json:"lastActivityAt"`
	ConnectionSince time.Duration `json:"connectionDuration"`
}

type entry struct {
	username     string
	connectedAt  time.Time
	requestCount int64
	lastActivity time.Time
}

// Tracker holds counters for every registered account. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Init (re)starts counters for an account.
func (t *Tracker) Init(accountID, username string) {
	now := t.now()
	t.mu.Lock()
	t.entries[accountID] = &entry{
		username:     username,
		connectedAt:  now,
		lastActivity: now,
	}
	t.mu.Unlock()
}

// Touch counts one request against an account. Unknown accounts are ignored.
func (t *Tracker) Touch(accountID string) {
	now := t.now()
	t.mu.Lock()
	if e, ok := t.entries[accountID]; ok {
		e.requestCount++
		e.lastActivity = now
	}
	t.mu.Unlock()
}

// Remove drops an account's counters.
func (t *Tracker) Remove(accountID string) {
	t.mu.Lock()
	delete(t.entries, accountID)
	t.mu.Unlock()
}

// Get returns the counters for one account.
func (t *Tracker) Get(accountID string) (Stats, bool) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[accountID]
	if !ok {
		return Stats{}, false
	}
	return e.stats(accountID, now), true
}

// All returns counters for every account, sorted by account id.
func (t *Tracker) All() []Stats {
	now := t.now()
	t.mu.Lock()
	out := make([]Stats, 0, len(t.entries))
	for id, e := range t.entries {
		out = append(out, e.stats(id, now))
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

func (e *entry) stats(id string, now time.Time) Stats {
	return Stats{
		AccountID:       id,
		Username:        e.username,
		ConnectedAt:     e.connectedAt,
		RequestCount:    e.requestCount,
		LastActivityAt:  e.lastActivity,
		ConnectionSince: now.Sub(e.connectedAt).Truncate(time.Second),
	}
}
