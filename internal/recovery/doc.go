// Package recovery reconciles durable account state with live sessions.
//
// Recover runs once at startup: every stored account marked online is
// re-authenticated and reconnected with a random delay, and accounts that
// cannot be recovered are marked offline. Heal runs on an interval and
// reconnects accounts that are online or dropped but have no live session.
// Cleanup deletes records that can never log in again.
package recovery
