package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"IgniteX/internal/domain/models"
)

// RedisHealthStore keeps strategy health in one hash, field per strategy.
type RedisHealthStore struct {
	client *redis.Client
	key    string
}

func NewRedisHealthStore(client *redis.Client, prefix string) *RedisHealthStore {
	return &RedisHealthStore{client: client, key: prefix + "strategy:health"}
}

func (s *RedisHealthStore) SaveHealth(ctx context.Context, health []models.StrategyHealth) error {
	if len(health) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(health))
	for _, h := range health {
		b, err := json.Marshal(h)
		if err != nil {
			return fmt.Errorf("encode health %s: %w", h.StrategyID, err)
		}
		fields[h.StrategyID] = b
	}
	if err := s.client.HSet(ctx, s.key, fields).Err(); err != nil {
		return fmt.Errorf("hset strategy health: %w", err)
	}
	return nil
}

func (s *RedisHealthStore) LoadHealth(ctx context.Context) ([]models.StrategyHealth, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("hgetall strategy health: %w", err)
	}
	out := make([]models.StrategyHealth, 0, len(raw))
	for id, v := range raw {
		var h models.StrategyHealth
		if err := json.Unmarshal([]byte(v), &h); err != nil {
			return nil, fmt.Errorf("decode health %s: %w", id, err)
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StrategyID < out[j].StrategyID })
	return out, nil
}

// consumeScript increments KEYS[1] only while it is below ARGV[1] and sets the
// expiry on first use. Returns {used, ok}.
var consumeScript = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if used >= limit then
  return {used, 0}
end
used = redis.call('INCR', KEYS[1])
if used == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {used, 1}
`)

// RedisQuotaStore shares tier quotas between replicas.
type RedisQuotaStore struct {
	client *redis.Client
	prefix string
}

func NewRedisQuotaStore(client *redis.Client, prefix string) *RedisQuotaStore {
	return &RedisQuotaStore{client: client, prefix: prefix}
}

func (s *RedisQuotaStore) key(tier models.Tier, window string) string {
	return s.prefix + quotaKey(tier, window)
}

func (s *RedisQuotaStore) Consume(ctx context.Context, tier models.Tier, window string, limit int, ttl time.Duration) (int, bool, error) {
	if ttl <= 0 {
		ttl = 25 * time.Hour
	}
	res, err := consumeScript.Run(ctx, s.client, []string{s.key(tier, window)}, limit, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("quota consume script: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("quota consume script: unexpected reply %v", res)
	}
	return int(res[0]), res[1] == 1, nil
}

func (s *RedisQuotaStore) Used(ctx context.Context, tier models.Tier, window string) (int, error) {
	n, err := s.client.Get(ctx, s.key(tier, window)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("quota get: %w", err)
	}
	return n, nil
}

func (s *RedisQuotaStore) Reset(ctx context.Context, tier models.Tier, window string) error {
	if err := s.client.Del(ctx, s.key(tier, window)).Err(); err != nil {
		return fmt.Errorf("quota reset: %w", err)
	}
	return nil
}
