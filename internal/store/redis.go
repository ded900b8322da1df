package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/boss-relay/internal/model"
)

const (
	userKeyPrefix = "user:"
	userListKey   = "users:list"

	// maxTxAttempts bounds optimistic-lock retries for one append.
	maxTxAttempts = 5
)

// setIfExists writes one hash field only when the hash already exists, so a
// status update for a deleted account does not leave a partial record.
var setIfExists = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// Redis stores records as hashes.
type Redis struct {
	client   redis.UniversalClient
	capacity int
	logger   *slog.Logger
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient, capacity int) *Redis {
	return &Redis{client: client, capacity: capacity, logger: slog.Default()}
}

func userKey(id string) string {
	return userKeyPrefix + id
}

func (s *Redis) Get(ctx context.Context, id string) (model.AccountRecord, error) {
	fields, err := s.client.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return model.AccountRecord{}, fmt.Errorf("get %s: %w", id, err)
	}
	if len(fields) == 0 {
		return model.AccountRecord{}, ErrNotFound
	}
	rec, err := decodeRecord(id, fields)
	if err != nil {
		s.logger.Warn("ignoring undecodable history", "account", id, "error", err)
	}
	return rec, nil
}

func (s *Redis) Put(ctx context.Context, rec model.AccountRecord) error {
	rec.RecentEvents = trim(rec.RecentEvents, s.capacity)
	rec.RecentLogs = trim(rec.RecentLogs, s.capacity)
	fields, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, userKey(rec.AccountID), fields)
		pipe.SAdd(ctx, userListKey, rec.AccountID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", rec.AccountID, err)
	}
	return nil
}

func (s *Redis) SetStatus(ctx context.Context, id string, status model.Status) error {
	return s.setField(ctx, id, fieldStatus, string(status))
}

func (s *Redis) SetStopRequested(ctx context.Context, id string, stop bool) error {
	value := "false"
	if stop {
		value = "true"
	}
	return s.setField(ctx, id, fieldStopBattle, value)
}

func (s *Redis) setField(ctx context.Context, id, field, value string) error {
	n, err := setIfExists.Run(ctx, s.client, []string{userKey(id)}, field, value).Int()
	if err != nil {
		return fmt.Errorf("set %s.%s: %w", id, field, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Redis) AppendLog(ctx context.Context, id string, entry model.LogEntry) error {
	return s.appendField(ctx, id, fieldLogs, func(raw string) (string, error) {
		logs, err := decodeLogs(raw)
		if err != nil {
			s.logger.Warn("replacing undecodable history", "account", id, "field", fieldLogs, "error", err)
		}
		return encodeLogs(model.AppendBounded(logs, entry, s.capacity))
	})
}

func (s *Redis) AppendEvent(ctx context.Context, id string, e model.Event) error {
	return s.appendField(ctx, id, fieldBattleSteps, func(raw string) (string, error) {
		events, err := decodeEvents(raw)
		if err != nil {
			s.logger.Warn("replacing undecodable history", "account", id, "field", fieldBattleSteps, "error", err)
		}
		return encodeEvents(model.AppendBounded(events, e, s.capacity))
	})
}

// appendField runs a read-modify-write of one history field under WATCH.
// Unknown accounts are left untouched.
func (s *Redis) appendField(ctx context.Context, id, field string, apply func(string) (string, error)) error {
	key := userKey(id)

	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		raw, err := tx.HGet(ctx, key, field).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		updated, err := apply(raw)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, updated)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("append %s.%s: %w", id, field, err)
	}
	return fmt.Errorf("append %s.%s: %w", id, field, redis.TxFailedErr)
}

func (s *Redis) Delete(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, userKey(id))
		pipe.SRem(ctx, userListKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

func (s *Redis) ListAllIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, userListKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Redis) ListOnlineIDs(ctx context.Context) ([]string, error) {
	ids, err := s.ListAllIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, userKey(id), fieldStatus)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list online ids: %w", err)
	}

	online := make([]string, 0, len(ids))
	for i, cmd := range cmds {
		if cmd.Val() == string(model.StatusOnline) {
			online = append(online, ids[i])
		}
	}
	return online, nil
}

func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Redis) Close() error {
	return s.client.Close()
}
