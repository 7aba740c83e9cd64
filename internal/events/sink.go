package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/JaimeStill/matchflow/pkg/lifecycle"
)

// CloudEventsSink forwards envelopes as CloudEvents over HTTP. Envelopes are
// queued and delivered by a single consumer; a full queue drops the envelope.
type CloudEventsSink struct {
	client cloudevents.Client
	target string
	source string
	queue  chan Envelope
	logger *slog.Logger
}

// NewCloudEventsSink creates a sink that posts to target.
func NewCloudEventsSink(target, source string, queueSize int, logger *slog.Logger) (*CloudEventsSink, error) {
	client, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, fmt.Errorf("create cloudevents client: %w", err)
	}
	return newCloudEventsSink(client, target, source, queueSize, logger), nil
}

func newCloudEventsSink(client cloudevents.Client, target, source string, queueSize int, logger *slog.Logger) *CloudEventsSink {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &CloudEventsSink{
		client: client,
		target: target,
		source: source,
		queue:  make(chan Envelope, queueSize),
		logger: logger.With("system", "event-sink", "target", target),
	}
}

// Start runs the delivery loop until the coordinator shuts down.
func (s *CloudEventsSink) Start(lc *lifecycle.Coordinator) error {
	lc.OnShutdown(func() {
		s.Run(lc.Context())
	})
	return nil
}

// Run delivers queued envelopes until ctx is cancelled.
func (s *CloudEventsSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-s.queue:
			s.deliver(ctx, env)
		}
	}
}

func (s *CloudEventsSink) Send(env Envelope) {
	select {
	case s.queue <- env:
	default:
		s.logger.Warn("sink queue full, event dropped", "session_id", env.SessionID, "type", env.Type)
	}
}

func (s *CloudEventsSink) deliver(ctx context.Context, env Envelope) {
	event, err := ToCloudEvent(env, s.source)
	if err != nil {
		s.logger.Error("encode cloudevent failed", "session_id", env.SessionID, "error", err)
		return
	}

	result := s.client.Send(cloudevents.ContextWithTarget(ctx, s.target), event)
	if !cloudevents.IsACK(result) {
		s.logger.Warn("cloudevent not delivered",
			"session_id", env.SessionID,
			"type", env.Type,
			"undelivered", cloudevents.IsUndelivered(result),
			"error", result,
		)
	}
}

// ToCloudEvent converts env to a CloudEvent with the envelope payload as JSON data.
func ToCloudEvent(env Envelope, source string) (cloudevents.Event, error) {
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(source)
	event.SetType("com.matchflow." + strings.ToLower(string(env.Type)))
	event.SetSubject(env.SessionID)
	event.SetTime(env.Timestamp)

	if err := event.SetData(cloudevents.ApplicationJSON, env.Data); err != nil {
		return event, err
	}
	return event, event.Validate()
}
