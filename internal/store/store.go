package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist
var ErrNotFound = errors.New("key not found")

// Key namespaces inside one scheduler's key space
const (
	ScheduledPrefix = "scheduled:"
	HistoryPrefix   = "history:"
)

// Store is the durable key-value space owned by a single scheduler instance.
// Every write returns only after the backend has acknowledged it.
type Store interface {
	// Get returns the value stored under key or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// ListByPrefix returns every key/value pair whose key starts with prefix
	ListByPrefix(ctx context.Context, prefix string) (map[string][]byte, error)

	// GetWake returns the persisted wake time, if one is armed
	GetWake(ctx context.Context) (time.Time, bool, error)

	// SetWake persists the armed wake time
	SetWake(ctx context.Context, at time.Time) error

	// ClearWake removes the persisted wake time
	ClearWake(ctx context.Context) error
}

// Backend hands out disjoint stores, one per scheduler instance
type Backend interface {
	Namespace(name string) Store
	Health(ctx context.Context) error
	Close() error
}
