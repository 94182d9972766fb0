package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaymesh/devicegate/internal/observability"
)

var ErrChallengeNotFound = errors.New("challenge not found")

// ChallengeRepository stores the single outstanding signing challenge per
// device. Put supersedes any prior challenge; ConsumeIfMatch deletes the
// challenge only if it still holds the text that was verified, so a
// re-issuance racing a verification can never be burned by the stale
// attempt.
type ChallengeRepository interface {
	Put(ctx context.Context, deviceID, challengeText string) error
	Find(ctx context.Context, deviceID string) (string, error)
	ConsumeIfMatch(ctx context.Context, deviceID, challengeText string) (bool, error)
}

// Compare-and-delete in a single round trip. GET+DEL must be atomic
// against a concurrent SET for the same device.
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1])
	return 1
end
return 0
`)

type RedisChallengeRepository struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewChallengeRepository(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisChallengeRepository {
	if prefix == "" {
		prefix = "device_challenge"
	}
	return &RedisChallengeRepository{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisChallengeRepository) Put(ctx context.Context, deviceID, challengeText string) error {
	if err := r.client.Set(ctx, r.key(deviceID), challengeText, r.ttl).Err(); err != nil {
		observability.RecordRepositoryOperation(ctx, "challenge", "put", "error")
		return fmt.Errorf("put challenge: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "challenge", "put", "success")
	return nil
}

func (r *RedisChallengeRepository) Find(ctx context.Context, deviceID string) (string, error) {
	text, err := r.client.Get(ctx, r.key(deviceID)).Result()
	if err == redis.Nil {
		observability.RecordRepositoryOperation(ctx, "challenge", "find", "not_found")
		return "", ErrChallengeNotFound
	}
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "challenge", "find", "error")
		return "", fmt.Errorf("find challenge: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "challenge", "find", "success")
	return text, nil
}

func (r *RedisChallengeRepository) ConsumeIfMatch(ctx context.Context, deviceID, challengeText string) (bool, error) {
	res, err := consumeScript.Run(ctx, r.client, []string{r.key(deviceID)}, challengeText).Int()
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "challenge", "consume", "error")
		return false, fmt.Errorf("consume challenge: %w", err)
	}
	if res != 1 {
		observability.RecordRepositoryOperation(ctx, "challenge", "consume", "superseded")
		return false, nil
	}
	observability.RecordRepositoryOperation(ctx, "challenge", "consume", "success")
	return true, nil
}

func (r *RedisChallengeRepository) key(deviceID string) string {
	return r.prefix + ":" + deviceID
}
