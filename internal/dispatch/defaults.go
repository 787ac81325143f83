package dispatch

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/aneeshsunganahalli/gopher-scheduler/internal/metrics"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/tracing"
)

// Options configures the built-in backends
type Options struct {
	ContainerURL string
	HTTPClient   *http.Client
	Queues       QueueResolver
}

// NewDefaultRegistry returns a registry with the container, webhook and queue backends
func NewDefaultRegistry(opts Options, logger *zap.Logger, tracer *tracing.Tracer, m *metrics.Metrics) (*Registry, error) {
	registry := NewRegistry(logger, tracer, m)

	backends := []Backend{
		NewContainerBackend(opts.ContainerURL, opts.HTTPClient, logger),
		NewWebhookBackend(opts.HTTPClient, logger),
		NewQueueBackend(opts.Queues, logger),
	}
	for _, b := range backends {
		if err := registry.Register(b); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
