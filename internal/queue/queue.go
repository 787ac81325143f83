package queue

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnknownQueue is returned when a queue name is not configured
var ErrUnknownQueue = errors.New("unknown queue")

// Queue is a named external message queue that scheduled jobs publish to
type Queue interface {
	// Enqueue appends a message to the queue
	Enqueue(ctx context.Context, message json.RawMessage) error

	// Size returns the current number of messages in the queue
	Size(ctx context.Context) (int, error)

	// Health checks if the queue is healthy/reachable
	Health(ctx context.Context) error

	// Close closes the queue connection
	Close() error
}

type QueueStats struct {
	Name          string `json:"name"`
	QueueSize     int    `json:"queue_size"`
	TotalEnqueued int    `json:"total_enqueued"`
}
