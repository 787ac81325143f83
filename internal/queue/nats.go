package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSQueue publishes messages to a JetStream subject
type NATSQueue struct {
	name    string
	subject string
	nc      *nats.Conn
	js      jetstream.JetStream
}

// natsTarget is the parsed form of nats://host:port/<subject>?stream=<name>
type natsTarget struct {
	serverURL string
	subject   string
	stream    string
}

func parseNATSURL(name, raw string) (natsTarget, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return natsTarget{}, fmt.Errorf("failed to parse NATS URL: %w", err)
	}
	if u.Scheme != "nats" && u.Scheme != "tls" {
		return natsTarget{}, fmt.Errorf("unsupported NATS scheme %q", u.Scheme)
	}

	subject := strings.Trim(u.Path, "/")
	if subject == "" {
		subject = "jobs." + name
	}
	stream := u.Query().Get("stream")

	server := url.URL{Scheme: u.Scheme, User: u.User, Host: u.Host}
	return natsTarget{serverURL: server.String(), subject: subject, stream: stream}, nil
}

// NewNATSQueue connects to the server in rawURL. When the URL carries a
// stream query parameter the stream is created (or updated) to cover the subject.
func NewNATSQueue(ctx context.Context, name, rawURL string, timeout time.Duration) (*NATSQueue, error) {
	target, err := parseNATSURL(name, rawURL)
	if err != nil {
		return nil, err
	}

	opts := []nats.Option{nats.Name("gopher-scheduler")}
	if timeout > 0 {
		opts = append(opts, nats.Timeout(timeout))
	}

	nc, err := nats.Connect(target.serverURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream: %w", err)
	}

	if target.stream != "" {
		if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     target.stream,
			Subjects: []string{target.subject},
		}); err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to ensure stream %s: %w", target.stream, err)
		}
	}

	return &NATSQueue{
		name:    name,
		subject: target.subject,
		nc:      nc,
		js:      js,
	}, nil
}

func (q *NATSQueue) Enqueue(ctx context.Context, message json.RawMessage) error {
	if len(message) == 0 {
		message = json.RawMessage("null")
	}
	if _, err := q.js.Publish(ctx, q.subject, message); err != nil {
		return fmt.Errorf("failed to publish message on %s: %w", q.name, err)
	}
	return nil
}

// Size reports the message count of the stream bound to the subject
func (q *NATSQueue) Size(ctx context.Context) (int, error) {
	streamName, err := q.js.StreamNameBySubject(ctx, q.subject)
	if err != nil {
		return 0, fmt.Errorf("failed to find stream for %s: %w", q.subject, err)
	}
	stream, err := q.js.Stream(ctx, streamName)
	if err != nil {
		return 0, fmt.Errorf("failed to get stream %s: %w", streamName, err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get stream info: %w", err)
	}
	return int(info.State.Msgs), nil
}

func (q *NATSQueue) Health(ctx context.Context) error {
	if status := q.nc.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats connection is %s", status)
	}
	return nil
}

func (q *NATSQueue) Close() error {
	q.nc.Close()
	return nil
}
