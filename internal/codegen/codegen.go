package codegen

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Allocator hands out strictly increasing report numbers. Every
// implementation is safe for concurrent use.
type Allocator interface {
	Next(ctx context.Context) (int64, error)
}

// Format renders a report number as its public code, e.g. WR-001.
func Format(n int64) string {
	return fmt.Sprintf("WR-%03d", n)
}

type Counter struct {
	n atomic.Int64
}

// NewCounter returns an in-process allocator whose first value is start+1.
func NewCounter(start int64) *Counter {
	c := &Counter{}
	c.n.Store(start)
	return c
}

func (c *Counter) Next(ctx context.Context) (int64, error) {
	return c.n.Add(1), nil
}

// RedisAllocator shares one sequence between service replicas via INCR.
type RedisAllocator struct {
	client redis.Cmdable
	key    string
}

func NewRedisAllocator(client redis.Cmdable, key string) *RedisAllocator {
	if key == "" {
		key = "waste_patrol:report_code_seq"
	}
	return &RedisAllocator{client: client, key: key}
}

func (a *RedisAllocator) Next(ctx context.Context) (int64, error) {
	n, err := a.client.Incr(ctx, a.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", a.key, err)
	}
	return n, nil
}
