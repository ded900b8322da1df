// Package writer implements the battle-step archive writer.
//
// Sessions hand every relayed battle step to the writer without blocking.
// The writer batches steps and appends them to the battle_steps table with
// COPY. Rows are never updated; each carries a random UUID key.
package writer
