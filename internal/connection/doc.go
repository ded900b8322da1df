// Package connection owns the upstream WebSocket sessions.
//
// A Session holds one account's upstream connection. Its lifecycle is
//
//	Disconnected -> Connecting -> Authenticated -> Active -> Disconnected
//
// and a single goroutine per Session processes inbound frames, join timers
// and stop requests in order. Sessions are single-use: once disconnected,
// reconnecting means creating a new Session.
//
// The Registry maps account ids to live Sessions and remembers accounts that
// dropped unexpectedly so the recovery loop can heal them.
package connection
