package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisRunPrefix = "spinup:run:"
	redisIndexKey  = "spinup:runs"
)

// RedisStore keeps each run as a JSON string under spinup:run:<id> and
// indexes ids by creation time in the spinup:runs sorted set. With a TTL,
// run keys expire and stale index entries are pruned on List.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("run store: redis ping %s: %w", opts.Addr, err)
	}
	return &RedisStore{client: client, ttl: opts.TTL}, nil
}

func (s *RedisStore) Save(ctx context.Context, run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("run store: marshal run %s: %w", run.ID, err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, redisRunPrefix+run.ID, data, s.ttl)
		p.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(run.CreatedAt.UnixNano()), Member: run.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("run store: save %s: %w", run.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Run, error) {
	data, err := s.client.Get(ctx, redisRunPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("run store: get %s: %w", id, err)
	}
	return decodeRun(data)
}

func (s *RedisStore) List(ctx context.Context, limit int) ([]*Run, error) {
	n := int64(listLimit(limit))
	ids, err := s.client.ZRevRange(ctx, redisIndexKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("run store: list: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisRunPrefix + id
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("run store: list: %w", err)
	}

	out := make([]*Run, 0, len(vals))
	var stale []any
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		run, err := decodeRun([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, redisIndexKey, stale...).Err()
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
