// Package metrics tracks lightweight per-account connection statistics.
//
// Tracked per account:
//   - connect time and computed connection duration
//   - viewer request count and last activity time
//
// These counters are observability only; nothing in the relay reads them
// to make decisions.
package metrics
