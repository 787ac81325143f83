package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/aneeshsunganahalli/gopher-scheduler/internal/queue"
	"github.com/aneeshsunganahalli/gopher-scheduler/pkg/types"
)

// QueueResolver finds a named queue at dispatch time
type QueueResolver interface {
	Resolve(ctx context.Context, name string) (queue.Queue, error)
}

// QueueBackend enqueues the payload message on the named queue
type QueueBackend struct {
	resolver QueueResolver
	logger   *zap.Logger
}

func NewQueueBackend(resolver QueueResolver, logger *zap.Logger) *QueueBackend {
	return &QueueBackend{resolver: resolver, logger: logger}
}

func (b *QueueBackend) Type() types.JobType {
	return types.JobTypeQueue
}

func (b *QueueBackend) Description() string {
	return "Enqueues the payload message on a named queue"
}

func (b *QueueBackend) Execute(ctx context.Context, job *types.ScheduledJob) (json.RawMessage, error) {
	payload, err := job.QueuePayload()
	if err != nil {
		return nil, err
	}
	if payload.Queue == "" {
		return nil, fmt.Errorf("queue payload requires queue")
	}

	q, err := b.resolver.Resolve(ctx, payload.Queue)
	if err != nil {
		return nil, err
	}

	if err := q.Enqueue(ctx, payload.Message); err != nil {
		return nil, err
	}

	b.logger.Info("Message enqueued",
		zap.String("job_id", job.ID),
		zap.String("queue", payload.Queue),
	)

	return json.Marshal(map[string]interface{}{
		"queue":    payload.Queue,
		"enqueued": true,
	})
}
