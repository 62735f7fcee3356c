package infra

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
)

const (
	defaultRedisPrefix = "notifmon:"
	redisOpTimeout     = 3 * time.Second
)

// RedisPreferenceStore implements domain.PreferenceStore on Redis, for
// setups where several machines share one policy.
type RedisPreferenceStore struct {
	client *redis.Client
	prefix string
}

// NewRedisPreferenceStore connects to redisURL and verifies the connection.
func NewRedisPreferenceStore(redisURL, prefix string) (*RedisPreferenceStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisPreferenceStoreWithClient(client, prefix), nil
}

// NewRedisPreferenceStoreWithClient wraps an existing client.
func NewRedisPreferenceStoreWithClient(client *redis.Client, prefix string) *RedisPreferenceStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisPreferenceStore{client: client, prefix: prefix}
}

func (s *RedisPreferenceStore) boolKey(key string) string {
	return s.prefix + "bool:" + key
}

func (s *RedisPreferenceStore) setKey(key string) string {
	return s.prefix + "set:" + key
}

// GetBool returns the stored flag or def when the key was never written.
func (s *RedisPreferenceStore) GetBool(key string, def bool) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := s.client.Get(ctx, s.boolKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to read %q: %w", key, err)
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("failed to parse %q: %w", key, err)
	}
	return v, nil
}

// PutBool upserts a flag.
func (s *RedisPreferenceStore) PutBool(key string, value bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := s.client.Set(ctx, s.boolKey(key), strconv.FormatBool(value), 0).Err(); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

// GetStringSet returns the members stored under key in ascending order.
func (s *RedisPreferenceStore) GetStringSet(key string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	members, err := s.client.SMembers(ctx, s.setKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	sort.Strings(members)
	return members, nil
}

// PutStringSet replaces the set under key in a MULTI/EXEC transaction.
func (s *RedisPreferenceStore) PutStringSet(key string, members []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	k := s.setKey(key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		if len(members) > 0 {
			args := make([]interface{}, len(members))
			for i, m := range members {
				args[i] = m
			}
			pipe.SAdd(ctx, k, args...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

// Close releases the client.
func (s *RedisPreferenceStore) Close() error {
	return s.client.Close()
}

// Ensure RedisPreferenceStore implements domain.PreferenceStore.
var _ domain.PreferenceStore = (*RedisPreferenceStore)(nil)
