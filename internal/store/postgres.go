package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/boss-relay/internal/model"
)

// Postgres stores records in the accounts table.
type Postgres struct {
	db       *pgxpool.Pool
	capacity int
	logger   *slog.Logger
}

// NewPostgres wraps a pool whose schema has been migrated.
func NewPostgres(db *pgxpool.Pool, capacity int) *Postgres {
	return &Postgres{db: db, capacity: capacity, logger: slog.Default()}
}

const (
	selectAccountSQL = `
		SELECT username, password, token, status, stop_requested, recent_events, recent_logs
		FROM accounts WHERE account_id = $1`

	upsertAccountSQL = `
		INSERT INTO accounts (account_id, username, password, token, status, stop_requested, recent_events, recent_logs, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (account_id) DO UPDATE SET
			username = EXCLUDED.username,
			password = EXCLUDED.password,
			token = EXCLUDED.token,
			status = EXCLUDED.status,
			stop_requested = EXCLUDED.stop_requested,
			recent_events = EXCLUDED.recent_events,
			recent_logs = EXCLUDED.recent_logs,
			updated_at = now()`

	// appendSQL appends $2 to a jsonb array column and keeps the newest $3
	// elements in order.
	appendSQL = `
		UPDATE accounts SET %[1]s = (
			SELECT COALESCE(jsonb_agg(elem ORDER BY ord), '[]'::jsonb)
			FROM (
				SELECT elem, ord
				FROM jsonb_array_elements(%[1]s || jsonb_build_array($2::jsonb)) WITH ORDINALITY AS t(elem, ord)
				ORDER BY ord DESC
				LIMIT $3
			) newest
		), updated_at = now()
		WHERE account_id = $1`
)

func (s *Postgres) Get(ctx context.Context, id string) (model.AccountRecord, error) {
	rec := model.AccountRecord{AccountID: id}
	var status string
	var events, logs []byte

	err := s.db.QueryRow(ctx, selectAccountSQL, id).Scan(
		&rec.Credentials.Username,
		&rec.Credentials.Password,
		&rec.AuthToken,
		&status,
		&rec.StopRequested,
		&events,
		&logs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AccountRecord{}, ErrNotFound
	}
	if err != nil {
		return model.AccountRecord{}, fmt.Errorf("get %s: %w", id, err)
	}
	rec.Status = model.Status(status)

	// Undecodable histories read as empty; credentials stay usable.
	if err := json.Unmarshal(events, &rec.RecentEvents); err != nil {
		s.logger.Warn("ignoring undecodable history", "account", id, "field", "recent_events", "error", err)
		rec.RecentEvents = nil
	}
	if err := json.Unmarshal(logs, &rec.RecentLogs); err != nil {
		s.logger.Warn("ignoring undecodable history", "account", id, "field", "recent_logs", "error", err)
		rec.RecentLogs = nil
	}
	return rec, nil
}

func (s *Postgres) Put(ctx context.Context, rec model.AccountRecord) error {
	events, err := json.Marshal(nonNil(trim(rec.RecentEvents, s.capacity)))
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	logs, err := json.Marshal(nonNil(trim(rec.RecentLogs, s.capacity)))
	if err != nil {
		return fmt.Errorf("encode logs: %w", err)
	}
	status := rec.Status
	if status == "" {
		status = model.StatusOffline
	}

	_, err = s.db.Exec(ctx, upsertAccountSQL,
		rec.AccountID,
		rec.Credentials.Username,
		rec.Credentials.Password,
		rec.AuthToken,
		string(status),
		rec.StopRequested,
		events,
		logs,
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", rec.AccountID, err)
	}
	return nil
}

func (s *Postgres) SetStatus(ctx context.Context, id string, status model.Status) error {
	return s.exec(ctx, id, `UPDATE accounts SET status = $2, updated_at = now() WHERE account_id = $1`, string(status))
}

func (s *Postgres) SetStopRequested(ctx context.Context, id string, stop bool) error {
	return s.exec(ctx, id, `UPDATE accounts SET stop_requested = $2, updated_at = now() WHERE account_id = $1`, stop)
}

func (s *Postgres) exec(ctx context.Context, id, sql string, arg any) error {
	tag, err := s.db.Exec(ctx, sql, id, arg)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) AppendLog(ctx context.Context, id string, entry model.LogEntry) error {
	return s.appendJSON(ctx, id, "recent_logs", entry)
}

func (s *Postgres) AppendEvent(ctx context.Context, id string, e model.Event) error {
	return s.appendJSON(ctx, id, "recent_events", e)
}

func (s *Postgres) appendJSON(ctx context.Context, id, column string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", column, err)
	}
	if _, err := s.db.Exec(ctx, fmt.Sprintf(appendSQL, column), id, b, s.capacity); err != nil {
		return fmt.Errorf("append %s.%s: %w", id, column, err)
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM accounts WHERE account_id = $1`, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

func (s *Postgres) ListAllIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, `SELECT account_id FROM accounts ORDER BY account_id`)
}

func (s *Postgres) ListOnlineIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, `SELECT account_id FROM accounts WHERE status = 'online' ORDER BY account_id`)
}

func (s *Postgres) listIDs(ctx context.Context, sql string) ([]string, error) {
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	return ids, nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Postgres) Close() error {
	s.db.Close()
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
