package counter

import (
	"context"
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/PayFox/app/models"
)

const paymentStatusKey = "payments:counters:status"

// Counter counts payment outcomes per status.
type Counter interface {
	RecordOutcome(ctx context.Context, status models.PaymentStatus)
	Snapshot(ctx context.Context) (map[string]int64, error)
}

// RedisCounter keeps counts in a Redis hash so every instance shares them.
type RedisCounter struct {
	rdb *redis.Client
	key string
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb, key: paymentStatusKey}
}

// RecordOutcome increments the status field. Errors are logged only.
func (c *RedisCounter) RecordOutcome(ctx context.Context, status models.PaymentStatus) {
	if err := c.rdb.HIncrBy(ctx, c.key, string(status), 1).Err(); err != nil {
		log.Warnf("[Counter] Failed to record outcome %s: %v", status, err)
	}
}

func (c *RedisCounter) Snapshot(ctx context.Context) (map[string]int64, error) {
	data, err := c.rdb.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for k, v := range data {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

// MemoryCounter is the single-process fallback used without a cache server.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64)}
}

func (c *MemoryCounter) RecordOutcome(_ context.Context, status models.PaymentStatus) {
	c.mu.Lock()
	c.counts[string(status)]++
	c.mu.Unlock()
}

func (c *MemoryCounter) Snapshot(context.Context) (map[string]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out, nil
}
