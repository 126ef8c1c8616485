package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/vantage-tms/vantage-tms/internal/cache"
)

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// RetryInvalidation enqueues a cache-invalidation retry. Implements
// cache.Retrier so the coordinator can hand off failed deletions.
func (c *Client) RetryInvalidation(ctx context.Context, keys []string) error {
	task, err := NewCacheInvalidateTask(CacheInvalidatePayload{Keys: keys})
	if err != nil {
		return fmt.Errorf("jobs: build invalidation task: %w", err)
	}
	if _, err := c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		return fmt.Errorf("jobs: enqueue invalidation: %w", err)
	}
	return nil
}

var _ cache.Retrier = (*Client)(nil)
