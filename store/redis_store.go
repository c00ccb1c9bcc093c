package store

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/widlabs/widgen/wid"
)

const (
	redisTickField = "tick"
	redisSeqField  = "seq"
)

// redisStore keeps one hash per row with tick and seq fields. Seed and
// CompareAndSave use WATCH-guarded optimistic transactions, so a
// concurrently modified row surfaces as a failed predicate rather than a
// lost update.
type redisStore struct {
	client *redis.Client
	prefix string
	log    *slog.Logger
}

// NewRedisStore creates a store against the given Redis client. The client
// is owned by the store afterwards; Close closes it.
func NewRedisStore(client *redis.Client, prefix string) CASStore {
	return &redisStore{
		client: client,
		prefix: prefix,
		log: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		})),
	}
}

var _ CASStore = (*redisStore)(nil)

func parseRedisState(fields map[string]string) (wid.State, error) {
	rawTick, okT := fields[redisTickField]
	rawSeq, okS := fields[redisSeqField]
	if !okT || !okS {
		return wid.State{}, errors.WithStack(ErrCorruptState)
	}
	tick, err := strconv.ParseInt(rawTick, 10, 64)
	if err != nil {
		return wid.State{}, errors.WithStack(ErrCorruptState)
	}
	seq, err := strconv.ParseInt(rawSeq, 10, 64)
	if err != nil {
		return wid.State{}, errors.WithStack(ErrCorruptState)
	}
	return wid.State{Tick: tick, Seq: seq}, nil
}

func (s *redisStore) Load(ctx context.Context, key string) (wid.State, error) {
	fields, err := s.client.HGetAll(ctx, fullKey(s.prefix, key)).Result()
	if err != nil {
		return wid.State{}, errors.WithStack(err)
	}
	if len(fields) == 0 {
		return wid.State{}, errors.WithStack(wid.ErrStateNotFound)
	}
	return parseRedisState(fields)
}

func (s *redisStore) Save(ctx context.Context, key string, st wid.State) error {
	err := s.client.HSet(ctx, fullKey(s.prefix, key),
		redisTickField, st.Tick,
		redisSeqField, st.Seq,
	).Err()
	return errors.WithStack(err)
}

func (s *redisStore) Seed(ctx context.Context, key string, st wid.State) error {
	k := fullKey(s.prefix, key)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, k).Result()
		if err != nil {
			return errors.WithStack(err)
		}
		if n > 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, redisTickField, st.Tick, redisSeqField, st.Seq)
			return nil
		})
		return errors.WithStack(err)
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		// another caller seeded the row first, which is fine
		return nil
	}
	return errors.WithStack(err)
}

func (s *redisStore) CompareAndSave(ctx context.Context, key string, prev, next wid.State) (bool, error) {
	k := fullKey(s.prefix, key)
	applied := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, k).Result()
		if err != nil {
			return errors.WithStack(err)
		}
		if len(fields) == 0 {
			return nil
		}
		cur, err := parseRedisState(fields)
		if err != nil {
			return err
		}
		if cur != prev {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, redisTickField, next.Tick, redisSeqField, next.Seq)
			return nil
		})
		if err != nil {
			return errors.WithStack(err)
		}
		applied = true
		return nil
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, errors.WithStack(err)
	}
	return applied, nil
}

func (s *redisStore) Name() string {
	return "redis"
}

func (s *redisStore) Close() error {
	return errors.WithStack(s.client.Close())
}
