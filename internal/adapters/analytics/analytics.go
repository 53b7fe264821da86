// Package analytics forwards product events to PostHog. Delivery is
// best-effort and never blocks gameplay.
package analytics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/posthog/posthog-go"

	"github.com/okian/flaggy/pkg/logger"
	"github.com/okian/flaggy/pkg/metrics"
)

// DefaultHost is the hosted capture service.
const DefaultHost = "https://app.posthog.com"

// Event names.
const (
	GameStarted       = "game_started"
	FlagGuessed       = "flag_guessed"
	DifficultyChanged = "difficulty_changed"
	RegionChanged     = "region_changed"
)

// Event is one captured action.
type Event struct {
	Name       string
	DistinctID string
	Properties map[string]any
	Timestamp  time.Time
}

// Sink accepts events.
type Sink interface {
	Capture(ctx context.Context, e Event)
	Close(ctx context.Context) error
}

// NopSink discards events. It warns once on first use.
type NopSink struct {
	logger logger.Logger
	once   sync.Once
}

// NewNopSink returns a sink that drops everything.
func NewNopSink(l logger.Logger) *NopSink {
	if l == nil {
		l = logger.Nop()
	}
	return &NopSink{logger: l}
}

// Capture implements Sink.
func (n *NopSink) Capture(ctx context.Context, _ Event) {
	n.once.Do(func() {
		n.logger.Warn(ctx, "analytics api key missing, events will not be sent")
	})
	metrics.RecordAnalyticsEvent("disabled")
}

// Close implements Sink.
func (n *NopSink) Close(context.Context) error { return nil }

// Option configures a PostHogSink.
type Option func(*PostHogSink)

// WithBatchSize sets how many events go out per request.
func WithBatchSize(n int) Option {
	return func(s *PostHogSink) {
		if n > 0 {
			s.cfg.BatchSize = n
		}
	}
}

// WithInterval sets how often partial batches are flushed.
func WithInterval(d time.Duration) Option {
	return func(s *PostHogSink) {
		if d > 0 {
			s.cfg.Interval = d
		}
	}
}

// WithTransport replaces the HTTP transport used for delivery.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *PostHogSink) {
		if rt != nil {
			s.cfg.Transport = rt
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *PostHogSink) {
		if l != nil {
			s.logger = l
		}
	}
}

// PostHogSink queues events on a posthog client which batches them to
// {host}/batch/ in the background.
type PostHogSink struct {
	client posthog.Client
	cfg    posthog.Config
	logger logger.Logger

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// NewPostHogSink starts a sink for apiKey at host (DefaultHost when empty).
func NewPostHogSink(apiKey, host string, opts ...Option) (*PostHogSink, error) {
	if host == "" {
		host = DefaultHost
	}
	s := &PostHogSink{
		cfg: posthog.Config{
			Endpoint: host,
			Interval: 5 * time.Second,
		},
		logger: logger.Nop(),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg.Logger = clientLogger{s.logger}
	s.cfg.Callback = s
	client, err := posthog.NewWithConfig(apiKey, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("posthog client: %w", err)
	}
	s.client = client
	return s, nil
}

// Capture implements Sink.
func (s *PostHogSink) Capture(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	props := posthog.NewProperties()
	for k, v := range e.Properties {
		props.Set(k, v)
	}
	err := s.client.Enqueue(posthog.Capture{
		DistinctId: e.DistinctID,
		Event:      e.Name,
		Timestamp:  e.Timestamp,
		Properties: props,
	})
	if err != nil {
		metrics.RecordAnalyticsEvent("dropped")
		s.logger.Debug(ctx, "analytics event dropped", logger.String("event", e.Name), logger.Error(err))
	}
}

// Close flushes queued events and waits for them or for ctx to end.
func (s *PostHogSink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		go func() {
			s.closeErr = s.client.Close()
			close(s.closed)
		}()
	})
	select {
	case <-s.closed:
		return s.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Success implements posthog.Callback.
func (s *PostHogSink) Success(posthog.APIMessage) {
	metrics.RecordAnalyticsEvent("sent")
}

// Failure implements posthog.Callback.
func (s *PostHogSink) Failure(_ posthog.APIMessage, err error) {
	metrics.RecordAnalyticsEvent("error")
	s.logger.Warn(context.Background(), "analytics delivery failed", logger.Error(err))
}

// clientLogger routes the posthog client's own diagnostics.
type clientLogger struct{ l logger.Logger }

func (c clientLogger) Debugf(format string, args ...any) {
	c.l.Debug(context.Background(), fmt.Sprintf(format, args...))
}

func (c clientLogger) Logf(format string, args ...any) {
	c.l.Info(context.Background(), fmt.Sprintf(format, args...))
}

func (c clientLogger) Warnf(format string, args ...any) {
	c.l.Warn(context.Background(), fmt.Sprintf(format, args...))
}

func (c clientLogger) Errorf(format string, args ...any) {
	c.l.Error(context.Background(), fmt.Sprintf(format, args...))
}

// New picks the PostHog sink when apiKey is set and the no-op sink
// otherwise, including when the client cannot be built.
func New(apiKey, host string, l logger.Logger, opts ...Option) Sink {
	if apiKey == "" {
		return NewNopSink(l)
	}
	sink, err := NewPostHogSink(apiKey, host, append([]Option{WithLogger(l)}, opts...)...)
	if err != nil {
		if l == nil {
			l = logger.Nop()
		}
		l.Error(context.Background(), "analytics disabled", logger.Error(err))
		return NewNopSink(l)
	}
	return sink
}
