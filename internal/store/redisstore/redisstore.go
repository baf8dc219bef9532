// Package redisstore implements store.Store on top of a Redis server.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sdclabs/chatgate/internal/store"
)

type Store struct {
	rdb *redis.Client
}

// New connects to Redis and verifies the connection with a PING.
func New(ctx context.Context, addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", store.ErrUnavailable, addr, err)
	}
	return &Store{rdb: rdb}, nil
}

// wrap translates go-redis errors into the store taxonomy so callers never
// import the redis package.
func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case err == redis.Nil:
		return store.ErrNotFound
	default:
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	return v, wrap(err)
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return wrap(s.rdb.Set(ctx, key, value, ttl).Err())
}

func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
	return ok, wrap(err)
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Incr(ctx, key).Result()
	return n, wrap(err)
}

func (s *Store) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	v, err := s.rdb.IncrBy(ctx, key, n).Result()
	return v, wrap(err)
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return wrap(s.rdb.Expire(ctx, key, ttl).Err())
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, wrap(err)
	}
	// go-redis reports -2 for absent keys and -1 for keys without expiry.
	switch {
	case d == -2:
		return 0, store.ErrNotFound
	case d < 0:
		return store.NoTTL, nil
	}
	return d, nil
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return wrap(s.rdb.Del(ctx, keys...).Err())
}

func (s *Store) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	ok, err := s.rdb.HSetNX(ctx, key, field, value).Result()
	return ok, wrap(err)
}

func (s *Store) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := s.rdb.HGet(ctx, key, field).Result()
	return v, wrap(err)
}

func (s *Store) RPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(values))
	for _, v := range values {
		args = append(args, v)
	}
	return wrap(s.rdb.RPush(ctx, key, args...).Err())
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := s.rdb.LRange(ctx, key, start, stop).Result()
	return vals, wrap(err)
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := s.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, wrap(err)
	}
	return out, nil
}

func (s *Store) XAdd(ctx context.Context, key string, values map[string]string) (string, error) {
	args := make(map[string]interface{}, len(values))
	for k, v := range values {
		args[k] = v
	}
	id, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: args,
	}).Result()
	return id, wrap(err)
}

// XRead blocks up to `block` waiting for entries after lastID on the given
// stream. Used by the analytics relay worker, not by the request path.
func (s *Store) XRead(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]store.StreamEntry, error) {
	res, err := s.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   count,
		Block:   block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err)
	}
	var out []store.StreamEntry
	for _, s := range res {
		for _, m := range s.Messages {
			entry := store.StreamEntry{ID: m.ID, Values: make(map[string]string, len(m.Values))}
			for k, v := range m.Values {
				if sv, ok := v.(string); ok {
					entry.Values[k] = sv
				}
			}
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
