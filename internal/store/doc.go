// Package store persists one AccountRecord per account so that sessions
// survive process restarts.
//
// Three backends implement Store:
//
//   - redis: hash "user:<id>" plus the "users:list" id set. Histories are
//     JSON arrays, the stop flag is "true"/"false".
//   - postgres: the accounts table created by database.Migrate.
//   - memory: process-local, for tests and single-node runs.
//
// Every append enforces the rolling history window. Callers treat store
// errors as "not yet applied" and rely on the next reconciliation pass.
package store
