// Package streakcache shares habit streak high-water marks between processes
// through Redis, so a second device never shows a streak lower than one
// already seen elsewhere.
package streakcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "daystreak:streak:"
	DefaultTTL    = 400 * 24 * time.Hour
)

// raise keeps the larger of the stored and given values, atomically
var raiseScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'current') or '0')
local lng = tonumber(redis.call('HGET', KEYS[1], 'longest') or '0')
local c = math.max(cur, tonumber(ARGV[1]))
local l = math.max(lng, tonumber(ARGV[2]), c)
redis.call('HSET', KEYS[1], 'current', c, 'longest', l)
redis.call('EXPIRE', KEYS[1], ARGV[3])
return {c, l}
`)

type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func New(client *redis.Client) *Cache {
	return &Cache{client: client, prefix: DefaultPrefix, ttl: DefaultTTL}
}

// Dial connects using a redis:// URL and verifies the server answers
func Dial(ctx context.Context, url string) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return New(client), nil
}

func (c *Cache) key(habitID string) string {
	return c.prefix + habitID
}

func (c *Cache) Raise(ctx context.Context, habitID string, current, longest int) (int, int, error) {
	res, err := raiseScript.Run(ctx, c.client, []string{c.key(habitID)},
		current, longest, int64(c.ttl/time.Second)).Int64Slice()
	if err != nil {
		return current, longest, err
	}
	if len(res) != 2 {
		return current, longest, fmt.Errorf("unexpected raise reply %v", res)
	}
	return int(res[0]), int(res[1]), nil
}

// Set stores values as-is, lowering them if needed (local unmark)
func (c *Cache) Set(ctx context.Context, habitID string, current, longest int) error {
	key := c.key(habitID)
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, "current", current, "longest", longest)
		p.Expire(ctx, key, c.ttl)
		return nil
	})
	return err
}

func (c *Cache) Delete(ctx context.Context, habitID string) error {
	return c.client.Del(ctx, c.key(habitID)).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
