package types

import (
	"encoding/json"
	"fmt"
)

// WebhookPayload is the payload of a webhook job
type WebhookPayload struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// QueuePayload is the payload of a queue job
type QueuePayload struct {
	Queue   string          `json:"queue"`
	Message json.RawMessage `json:"message,omitempty"`
}

// WebhookPayload decodes the payload as a webhook call
func (j *ScheduledJob) WebhookPayload() (*WebhookPayload, error) {
	var p WebhookPayload
	if err := decodePayload(j.Payload, &p); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	return &p, nil
}

// QueuePayload decodes the payload as a queue message
func (j *ScheduledJob) QueuePayload() (*QueuePayload, error) {
	var p QueuePayload
	if err := decodePayload(j.Payload, &p); err != nil {
		return nil, fmt.Errorf("invalid queue payload: %w", err)
	}
	return &p, nil
}

// ContainerPayload returns the payload bytes forwarded to the job-submission service
func (j *ScheduledJob) ContainerPayload() json.RawMessage {
	if len(j.Payload) == 0 {
		return json.RawMessage("{}")
	}
	return j.Payload
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
