package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Sink receives webhook payloads.
type Sink interface {
	Name() string
	Send(ctx context.Context, p Payload) error
}

// HTTPSink POSTs the payload as JSON. It does not retry.
type HTTPSink struct {
	name   string
	url    string
	client *http.Client
}

// HTTPSinkOption configures an HTTPSink.
type HTTPSinkOption func(*HTTPSink)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPSinkOption {
	return func(s *HTTPSink) { s.client = c }
}

// NewHTTPSink creates a sink posting to url with the given request timeout.
func NewHTTPSink(name, url string, timeout time.Duration, opts ...HTTPSinkOption) *HTTPSink {
	s := &HTTPSink{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *HTTPSink) Name() string { return s.name }

func (s *HTTPSink) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("webhook %s: marshal: %w", s.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook %s: new request: %w", s.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: request failed: %w", s.name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s: status %d", s.name, resp.StatusCode)
	}
	return nil
}

// CloudEventSink delivers the payload as a binary-mode CloudEvent whose type
// is the event name.
type CloudEventSink struct {
	target  string
	source  string
	timeout time.Duration
	client  cloudevents.Client
}

// NewCloudEventSink creates a sink delivering to target over HTTP.
func NewCloudEventSink(target string, timeout time.Duration) (*CloudEventSink, error) {
	client, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, fmt.Errorf("failed to create CloudEvents client: %w", err)
	}
	return &CloudEventSink{
		target:  target,
		source:  "leadcapture",
		timeout: timeout,
		client:  client,
	}, nil
}

func (s *CloudEventSink) Name() string { return "cloudevents" }

func (s *CloudEventSink) Send(ctx context.Context, p Payload) error {
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(s.source)
	event.SetType(string(p.Event()))
	event.SetTime(time.Now())
	if err := event.SetData(cloudevents.ApplicationJSON, p); err != nil {
		return fmt.Errorf("cloudevents: set data: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = cloudevents.ContextWithTarget(ctx, s.target)
	ctx = cloudevents.WithEncodingBinary(ctx)

	if result := s.client.Send(ctx, event); !cloudevents.IsACK(result) {
		return fmt.Errorf("cloudevents: delivery to %s failed: %w", s.target, result)
	}
	return nil
}
