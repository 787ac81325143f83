package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/aneeshsunganahalli/gopher-scheduler/pkg/types"
)

const maxContainerResponse = 4 << 20

// ContainerBackend submits the job payload to the job-submission service
// and records the service's decoded response.
type ContainerBackend struct {
	submitURL string
	client    *http.Client
	logger    *zap.Logger
}

func NewContainerBackend(submitURL string, client *http.Client, logger *zap.Logger) *ContainerBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &ContainerBackend{
		submitURL: strings.TrimSpace(submitURL),
		client:    client,
		logger:    logger,
	}
}

func (b *ContainerBackend) Type() types.JobType {
	return types.JobTypeContainer
}

func (b *ContainerBackend) Description() string {
	return "Submits the payload to the container job service"
}

func (b *ContainerBackend) Execute(ctx context.Context, job *types.ScheduledJob) (json.RawMessage, error) {
	if b.submitURL == "" {
		return nil, fmt.Errorf("container job service is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.submitURL, bytes.NewReader(job.ContainerPayload()))
	if err != nil {
		return nil, fmt.Errorf("failed to build container request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Scheduled-Job-Id", job.ID)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("container submission failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxContainerResponse))
	if err != nil {
		return nil, fmt.Errorf("failed to read container response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("container service returned %d: %s", resp.StatusCode, truncate(string(data), 256))
	}

	b.logger.Info("Container job submitted",
		zap.String("job_id", job.ID),
		zap.Int("status", resp.StatusCode),
	)

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		// keep non-JSON replies readable in history
		return json.Marshal(string(data))
	}
	return json.RawMessage(data), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
