// Package database provides PostgreSQL connection pool management.
//
// The relay uses PostgreSQL for two optional concerns:
//   - the "postgres" session store backend (accounts table)
//   - the append-only battle-step archive
//
// Both share a single pgxpool.Pool built from config.DBConfig.
package database
