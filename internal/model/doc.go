// Package model defines the account and event types shared across the relay.
//
// Conventions:
//   - AccountID is the stable key of a managed account (the upstream username)
//   - Histories are bounded rolling windows, newest last, capacity HistoryCapacity
//   - Timestamps are local capture times (time.Time), serialized as RFC 3339
package model
