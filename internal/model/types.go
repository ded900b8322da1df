package model

import (
	"encoding/json"
	"time"
)

// HistoryCapacity is the size of every bounded event/log window.
const HistoryCapacity = 20

// Status is the durable connectivity status of an account.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// -----------------------------------------------------------------------------
// Account Types
// -----------------------------------------------------------------------------

// Credentials are the upstream login credentials for one account.
type Credentials struct {
	Username string
	Password string
}

// AccountRecord is the durable state persisted for one account.
type AccountRecord struct {
	AccountID     string
	Credentials   Credentials
	AuthToken     string // Short-lived, refreshed on every successful login
	Status        Status
	StopRequested bool       // User-initiated pause, suppresses auto-reconnect
	RecentEvents  []Event    // Rolling window, oldest first
	RecentLogs    []LogEntry // Rolling window, oldest first
}

// Valid reports whether the record carries enough data to log in again.
func (r AccountRecord) Valid() bool {
	return r.Credentials.Username != "" && r.Credentials.Password != ""
}

// -----------------------------------------------------------------------------
// Relayed Data
// -----------------------------------------------------------------------------

// Event is an upstream event stamped with its local capture time.
type Event struct {
	Name       string          `json:"event"`
	CapturedAt time.Time       `json:"time"`
	Payload    json.RawMessage `json:"data,omitempty"`

	// Raw holds a stored entry that is not in the event envelope, such as a
	// bare step object written by older deployments. It is encoded unchanged.
	Raw json.RawMessage `json:"-"`
}

type eventJSON struct {
	Name       string          `json:"event"`
	CapturedAt time.Time       `json:"time"`
	Payload    json.RawMessage `json:"data,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	return json.Marshal(eventJSON{Name: e.Name, CapturedAt: e.CapturedAt, Payload: e.Payload})
}

// UnmarshalJSON never fails on valid JSON. Entries without an event name or
// with a foreign time format are kept in Raw, and used as the payload.
func (e *Event) UnmarshalJSON(b []byte) error {
	var v eventJSON
	if err := json.Unmarshal(b, &v); err == nil && v.Name != "" {
		*e = Event{Name: v.Name, CapturedAt: v.CapturedAt, Payload: v.Payload}
		return nil
	}
	raw := append(json.RawMessage(nil), b...)
	*e = Event{Payload: raw, Raw: raw}
	return nil
}

// LogEntry is a timestamped, human-readable account log line.
type LogEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// String renders the entry as "hh:mm:ss message". Entries without a time
// render as the bare message.
func (l LogEntry) String() string {
	if l.At.IsZero() {
		return l.Message
	}
	return l.At.Format(time.TimeOnly) + " " + l.Message
}

// NewLogEntry creates a log entry stamped with the current time.
func NewLogEntry(format string, args ...any) LogEntry {
	return LogEntry{At: time.Now(), Message: sprintf(format, args...)}
}

// AppendBounded appends v and evicts from the front until len <= capacity.
// The returned slice never aliases s.
func AppendBounded[T any](s []T, v T, capacity int) []T {
	if capacity < 1 {
		return nil
	}
	start := 0
	if n := len(s) + 1; n > capacity {
		start = n - capacity
	}
	out := make([]T, 0, capacity)
	if start < len(s) {
		out = append(out, s[start:]...)
	}
	return append(out, v)
}
