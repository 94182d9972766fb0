package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyCacheStore shares the pinned-key cache across gateway
// replicas. Invalidation bumps an epoch counter so no scan is needed.
type RedisKeyCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisKeyCacheStore(client redis.UniversalClient, prefix string) *RedisKeyCacheStore {
	if prefix == "" {
		prefix = "device_key"
	}
	return &RedisKeyCacheStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisKeyCacheStore) Get(ctx context.Context, deviceID string) (string, bool, error) {
	if s.client == nil {
		return "", false, nil
	}
	key, err := s.dataKey(ctx, deviceID)
	if err != nil {
		return "", false, err
	}
	publicKey, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return publicKey, true, nil
}

func (s *RedisKeyCacheStore) Set(ctx context.Context, deviceID, publicKey string, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	key, err := s.dataKey(ctx, deviceID)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, publicKey, ttl).Err()
}

func (s *RedisKeyCacheStore) InvalidateDevice(ctx context.Context, deviceID string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Incr(ctx, s.deviceEpochKey(deviceID)).Err()
}

func (s *RedisKeyCacheStore) InvalidateAll(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Incr(ctx, s.globalEpochKey()).Err()
}

func (s *RedisKeyCacheStore) dataKey(ctx context.Context, deviceID string) (string, error) {
	pipe := s.client.Pipeline()
	globalEpochCmd := pipe.Get(ctx, s.globalEpochKey())
	deviceEpochCmd := pipe.Get(ctx, s.deviceEpochKey(deviceID))
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return "", err
	}
	globalEpoch, err := parseEpoch(globalEpochCmd)
	if err != nil {
		return "", err
	}
	deviceEpoch, err := parseEpoch(deviceEpochCmd)
	if err != nil {
		return "", err
	}
	return s.prefix + ":" + buildKeyCacheKey(globalEpoch, deviceEpoch, deviceID), nil
}

func parseEpoch(cmd *redis.StringCmd) (uint64, error) {
	v, err := cmd.Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *RedisKeyCacheStore) globalEpochKey() string {
	return s.prefix + ":epoch:global"
}

func (s *RedisKeyCacheStore) deviceEpochKey(deviceID string) string {
	return fmt.Sprintf("%s:epoch:device:%s", s.prefix, hashToken(deviceID))
}
