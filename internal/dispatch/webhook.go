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

// WebhookResult is what a webhook execution records
type WebhookResult struct {
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
}

// WebhookBackend calls the URL in the job payload. Any HTTP response,
// including 4xx and 5xx, counts as success; only transport errors fail.
type WebhookBackend struct {
	client *http.Client
	logger *zap.Logger
}

func NewWebhookBackend(client *http.Client, logger *zap.Logger) *WebhookBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookBackend{client: client, logger: logger}
}

func (b *WebhookBackend) Type() types.JobType {
	return types.JobTypeWebhook
}

func (b *WebhookBackend) Description() string {
	return "Calls an outbound HTTP endpoint"
}

func (b *WebhookBackend) Execute(ctx context.Context, job *types.ScheduledJob) (json.RawMessage, error) {
	payload, err := job.WebhookPayload()
	if err != nil {
		return nil, err
	}
	if payload.URL == "" {
		return nil, fmt.Errorf("webhook payload requires url")
	}

	method := strings.ToUpper(strings.TrimSpace(payload.Method))
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if len(payload.Body) > 0 && method != http.MethodGet && method != http.MethodHead {
		body = bytes.NewReader(payload.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, payload.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}
	for k, v := range payload.Headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	b.logger.Info("Webhook delivered",
		zap.String("job_id", job.ID),
		zap.String("method", method),
		zap.String("url", payload.URL),
		zap.Int("status", resp.StatusCode),
	)

	return json.Marshal(WebhookResult{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
	})
}
