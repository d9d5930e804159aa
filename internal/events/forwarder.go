package events

import (
	"context"
	"time"

	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/metrics"
)

// StreamPublisher writes an event to an external stream.
type StreamPublisher interface {
	Send(ctx context.Context, eventType, key string, value any) error
}

// Forwarder copies keyed domain events to the governance stream. Stream
// outages never fail the publisher.
type Forwarder struct {
	pub     StreamPublisher
	log     *logger.Logger
	timeout time.Duration
}

func NewForwarder(pub StreamPublisher, log *logger.Logger) *Forwarder {
	return &Forwarder{pub: pub, log: log, timeout: 5 * time.Second}
}

// Register subscribes the forwarder to every event on bus.
func (f *Forwarder) Register(bus *InMemoryBus) {
	if f == nil || f.pub == nil {
		return
	}
	bus.SubscribeAll(f)
}

func (f *Forwarder) Handle(ctx context.Context, event Event) error {
	keyed, ok := event.(Keyed)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.pub.Send(ctx, event.EventName(), keyed.PartitionKey(), event); err != nil {
		metrics.BestEffortFailures.WithLabelValues("stream_forward").Inc()
		f.log.BestEffortFailure("stream_forward", err, "event", event.EventName())
	}
	return nil
}
