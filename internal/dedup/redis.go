package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "alertworker:key:"
	inFlightValue  = "inflight"
	processedValue = "processed"

	// inFlightTTL bounds how long a claim survives a crashed worker before
	// the key becomes claimable again.
	inFlightTTL = 10 * time.Minute
)

// releaseScript deletes the key only while it is still in flight, so a
// concurrent MarkProcessed is never undone by a late Release.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGate is a Gate whose processed keys survive process restarts. With it
// enabled the worker will not re-deliver a trigger for a key it completed in
// a previous run, even if the ledger redelivers the event.
type RedisGate struct {
	client *redis.Client
}

// NewRedisGate creates a gate backed by the given Redis client.
func NewRedisGate(client *redis.Client) *RedisGate {
	return &RedisGate{client: client}
}

func (g *RedisGate) TryClaim(ctx context.Context, key string) (bool, error) {
	claimed, err := g.client.SetNX(ctx, redisKeyPrefix+key, inFlightValue, inFlightTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim key %s: %w", key, err)
	}
	return claimed, nil
}

func (g *RedisGate) MarkProcessed(ctx context.Context, key string) error {
	if err := g.client.Set(ctx, redisKeyPrefix+key, processedValue, 0).Err(); err != nil {
		return fmt.Errorf("failed to mark key %s processed: %w", key, err)
	}
	return nil
}

func (g *RedisGate) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, g.client, []string{redisKeyPrefix + key}, inFlightValue).Err(); err != nil {
		return fmt.Errorf("failed to release key %s: %w", key, err)
	}
	return nil
}
