package queue

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Resolver maps queue names to queue connections. Names come from
// configuration; connections are opened on first use so that a missing or
// unreachable queue only fails the jobs that target it.
type Resolver struct {
	mu      sync.Mutex
	urls    map[string]string
	queues  map[string]Queue
	timeout time.Duration
	logger  *zap.Logger
}

func NewResolver(urls map[string]string, timeout time.Duration, logger *zap.Logger) *Resolver {
	copied := make(map[string]string, len(urls))
	for name, u := range urls {
		copied[name] = u
	}
	return &Resolver{
		urls:    copied,
		queues:  make(map[string]Queue),
		timeout: timeout,
		logger:  logger,
	}
}

// Register binds an already opened queue to name
func (r *Resolver) Register(name string, q Queue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[name] = q
}

// Resolve returns the queue bound to name, connecting if needed
func (r *Resolver) Resolve(ctx context.Context, name string) (Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[name]; ok {
		return q, nil
	}

	rawURL, ok := r.urls[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, name)
	}

	q, err := r.open(ctx, name, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue %s: %w", name, err)
	}

	r.queues[name] = q
	r.logger.Info("Opened queue connection", zap.String("queue", name))
	return q, nil
}

func (r *Resolver) open(ctx context.Context, name, rawURL string) (Queue, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid queue URL: %w", err)
	}

	switch u.Scheme {
	case "redis", "rediss":
		return NewRedisQueue(name, RedisOptions{
			URL:            rawURL,
			ConnectTimeout: r.timeout,
			CommandTimeout: r.timeout,
		})
	case "nats", "tls":
		return NewNATSQueue(ctx, name, rawURL, r.timeout)
	default:
		return nil, fmt.Errorf("unsupported queue scheme %q", u.Scheme)
	}
}

// Names returns every configured or registered queue name
func (r *Resolver) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(r.urls)+len(r.queues))
	for name := range r.urls {
		seen[name] = struct{}{}
	}
	for name := range r.queues {
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every opened connection
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, q := range r.queues {
		if err := q.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	r.queues = make(map[string]Queue)
	return errors.Join(errs...)
}
