package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix = "gopher"   // root of every scheduler key
	wakeKey   = "wake"     // wake register inside a namespace
	scanBatch = int64(200) // SCAN COUNT hint
)

type RedisOptions struct {
	URL            string
	Password       string
	DB             int
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
}

// RedisBackend stores each scheduler namespace under gopher:<namespace>:
type RedisBackend struct {
	client redis.Cmdable
	opts   RedisOptions
}

func NewRedisBackend(opts RedisOptions) (*RedisBackend, error) {
	// Parse URl to create new client
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if opts.Password != "" {
		redisOpts.Password = opts.Password
	}
	redisOpts.DB = opts.DB
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.CommandTimeout
	redisOpts.WriteTimeout = opts.CommandTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBackend{client: client, opts: opts}, nil
}

// NewRedisBackendFromClient wraps an existing client
func NewRedisBackendFromClient(client redis.Cmdable) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Namespace(name string) Store {
	return &RedisStore{
		client: b.client,
		prefix: fmt.Sprintf("%s:%s:", keyPrefix, name),
	}
}

func (b *RedisBackend) Health(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (b *RedisBackend) Close() error {
	if client, ok := b.client.(*redis.Client); ok {
		return client.Close()
	}
	return nil
}

// RedisStore is one namespace of a RedisBackend
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// globEscaper quotes SCAN MATCH metacharacters so a prefix matches literally
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func (r *RedisStore) key(k string) string {
	return r.prefix + k
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

func (r *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) ListByPrefix(ctx context.Context, prefix string) (map[string][]byte, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.client.Scan(ctx, cursor, globEscaper.Replace(r.key(prefix))+"*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", prefix, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", prefix, err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// deleted between SCAN and MGET
			continue
		}
		out[keys[i][len(r.prefix):]] = []byte(s)
	}
	return out, nil
}

func (r *RedisStore) GetWake(ctx context.Context) (time.Time, bool, error) {
	v, err := r.client.Get(ctx, r.key(wakeKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to get wake time: %w", err)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt wake time %q: %w", v, err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

func (r *RedisStore) SetWake(ctx context.Context, at time.Time) error {
	if err := r.client.Set(ctx, r.key(wakeKey), strconv.FormatInt(at.UnixMilli(), 10), 0).Err(); err != nil {
		return fmt.Errorf("failed to set wake time: %w", err)
	}
	return nil
}

func (r *RedisStore) ClearWake(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key(wakeKey)).Err(); err != nil {
		return fmt.Errorf("failed to clear wake time: %w", err)
	}
	return nil
}
