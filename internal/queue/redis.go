package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	queueKeyPrefix = "queue:"       //  Redis list storing messages of one queue
	statsKeyPrefix = "queue_stats:" //  Redis hash storing counters of one queue
)

type RedisOptions struct {
	URL            string
	Password       string
	DB             int
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
}

// RedisQueue pushes messages onto a Redis list named after the queue
type RedisQueue struct {
	name   string
	client redis.Cmdable // Client used to talk to Redis
	opts   RedisOptions
}

func NewRedisQueue(name string, opts RedisOptions) (*RedisQueue, error) {
	// Parse URl to create new client
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if opts.Password != "" {
		redisOpts.Password = opts.Password
	}
	if opts.ConnectTimeout > 0 {
		redisOpts.DialTimeout = opts.ConnectTimeout
	}
	if opts.CommandTimeout > 0 {
		redisOpts.ReadTimeout = opts.CommandTimeout
		redisOpts.WriteTimeout = opts.CommandTimeout
	}

	client := redis.NewClient(redisOpts) // creates actual connection pool to redis

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisQueue{
		name:   name,
		client: client,
		opts:   opts,
	}, nil
}

// NewRedisQueueFromClient builds a queue over an existing client
func NewRedisQueueFromClient(name string, client redis.Cmdable) *RedisQueue {
	return &RedisQueue{name: name, client: client}
}

func (r *RedisQueue) listKey() string {
	return queueKeyPrefix + r.name
}

func (r *RedisQueue) statsKey() string {
	return statsKeyPrefix + r.name
}

func (r *RedisQueue) Enqueue(ctx context.Context, message json.RawMessage) error {
	if len(message) == 0 {
		message = json.RawMessage("null")
	}

	pipe := r.client.Pipeline() // used for atomic operations

	pipe.LPush(ctx, r.listKey(), []byte(message))

	pipe.HIncrBy(ctx, r.statsKey(), "total_enqueued", 1)

	// Execute pipeline
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue message on %s: %w", r.name, err)
	}

	return nil
}

func (r *RedisQueue) Size(ctx context.Context) (int, error) {
	result := r.client.LLen(ctx, r.listKey())
	if err := result.Err(); err != nil {
		return 0, fmt.Errorf("failed to get queue size: %w", err)
	}
	return int(result.Val()), nil
}

func (r *RedisQueue) Health(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisQueue) Close() error {
	if client, ok := r.client.(*redis.Client); ok {
		return client.Close()
	}
	return nil
}

func (r *RedisQueue) GetStats(ctx context.Context) (*QueueStats, error) {
	pipe := r.client.Pipeline()

	sizeCmd := pipe.LLen(ctx, r.listKey())
	statsCmd := pipe.HGetAll(ctx, r.statsKey())

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	stats := &QueueStats{
		Name:      r.name,
		QueueSize: int(sizeCmd.Val()),
	}

	// Parse statistics if they exist
	if enqueued, exists := statsCmd.Val()["total_enqueued"]; exists {
		fmt.Sscanf(enqueued, "%d", &stats.TotalEnqueued)
	}

	return stats, nil
}
