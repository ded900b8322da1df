package connection

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/rickgao/boss-relay/internal/metrics"
)

// Registry maps account ids to live Sessions. Every mutation is a single
// locked step, so check-then-insert never interleaves with another caller.
// Tracker entries are updated under the same lock and mirror the map.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	dropped  map[string]struct{}

	tracker *metrics.Tracker
	logger  *slog.Logger
}

// NewRegistry creates an empty registry. A nil tracker gets a fresh one.
func NewRegistry(tracker *metrics.Tracker, logger *slog.Logger) *Registry {
	if tracker == nil {
		tracker = metrics.NewTracker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		dropped:  make(map[string]struct{}),
		tracker:  tracker,
		logger:   logger,
	}
}

// Add registers s under id, replacing any previous entry. The previous
// Session is returned and the caller is responsible for closing it.
func (r *Registry) Add(id string, s *Session) (previous *Session) {
	r.mu.Lock()
	previous = r.sessions[id]
	r.sessions[id] = s
	delete(r.dropped, id)
	r.tracker.Init(id, s.Username())
	r.mu.Unlock()

	if previous != nil && previous != s {
		r.logger.Debug("session replaced", "account", id)
	}
	return previous
}

// AddIfAbsent registers s only if no session is registered for id. It
// returns the registered session and whether s was added.
func (r *Registry) AddIfAbsent(id string, s *Session) (*Session, bool) {
	r.mu.Lock()
	if existing, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return existing, false
	}
	r.sessions[id] = s
	delete(r.dropped, id)
	r.tracker.Init(id, s.Username())
	r.mu.Unlock()

	return s, true
}

// Get returns the session for id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Remove unregisters id. It is idempotent.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	_, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		r.tracker.Remove(id)
	}
	r.mu.Unlock()
	return ok
}

// RemoveIf unregisters id only while it still maps to s, so a closing
// session never evicts its replacement.
func (r *Registry) RemoveIf(id string, s *Session) bool {
	r.mu.Lock()
	cur, ok := r.sessions[id]
	ok = ok && cur == s
	if ok {
		delete(r.sessions, id)
		r.tracker.Remove(id)
	}
	r.mu.Unlock()
	return ok
}

// OnlineCount returns the number of registered sessions.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the registered account ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// All returns the registered sessions.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// JoinAll asks every registered session to send a join now.
func (r *Registry) JoinAll() int {
	sessions := r.All()
	for _, s := range sessions {
		s.RequestJoin()
	}
	return len(sessions)
}

// CloseAll closes every session without changing durable state.
func (r *Registry) CloseAll() {
	var wg sync.WaitGroup
	for _, s := range r.All() {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}

// MarkDropped records that id disconnected unexpectedly.
func (r *Registry) MarkDropped(id string) {
	r.mu.Lock()
	if _, live := r.sessions[id]; !live {
		r.dropped[id] = struct{}{}
	}
	r.mu.Unlock()
}

// TakeDropped returns and clears the dropped set, sorted.
func (r *Registry) TakeDropped() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.dropped))
	for id := range r.dropped {
		ids = append(ids, id)
	}
	clear(r.dropped)
	r.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// Touch counts one request against an account's stats.
func (r *Registry) Touch(id string) {
	r.tracker.Touch(id)
}

// Tracker returns the registry's connection stats.
func (r *Registry) Tracker() *metrics.Tracker {
	return r.tracker
}
