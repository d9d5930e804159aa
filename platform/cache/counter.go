package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// WindowCounter keeps fixed-window counts in Redis so every instance sees the
// same totals.
type WindowCounter struct {
	client redis.UniversalClient
	prefix string
	window time.Duration
	now    func() time.Time
}

func NewWindowCounter(client redis.UniversalClient, prefix string, window time.Duration) *WindowCounter {
	return &WindowCounter{client: client, prefix: prefix, window: window, now: time.Now}
}

func (c *WindowCounter) bucketKey(subject string, at time.Time) string {
	bucket := at.UTC().Truncate(c.window).Unix()
	return fmt.Sprintf("%s:%s:%d", c.prefix, subject, bucket)
}

// Incr adds one to the current window and returns the new count.
func (c *WindowCounter) Incr(ctx context.Context, subject string) (int64, error) {
	key := c.bucketKey(subject, c.now())
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*c.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Current returns the count for the current window.
func (c *WindowCounter) Current(ctx context.Context, subject string) (int64, error) {
	n, err := c.client.Get(ctx, c.bucketKey(subject, c.now())).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
