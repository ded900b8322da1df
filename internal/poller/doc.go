// Package poller implements the encounter poller.
//
// The poller:
//   - Polls the upstream REST API every few seconds for the running world boss
//   - Requests a challenge id when a new boss appears
//   - Replaces the shared encounter state and asks every session to join
//   - Keeps health counters fresh between socket updates
package poller
