// Package encounter holds the process-wide snapshot of the upstream's current
// shared encounter (the world boss every online account tries to join).
//
// The snapshot is replaced wholesale: a new boss id yields a new Generation and
// any holder of an older generation must not act on it as current. Counter
// updates (hp) and the leaderboard are last-writer-wins; cross-session ordering
// is not enforced.
package encounter
