// Package messaging delivers domain events to one or more publishers.
package messaging

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"todoflow/application/ports"
	"todoflow/domain/events"
)

// EventDispatcher fans events out to a primary publisher and any number of
// local ones. Only the primary's failure is reported to the caller; local
// failures are logged.
type EventDispatcher struct {
	primary ports.EventPublisher
	local   []ports.EventPublisher
	logger  *zap.Logger
}

var _ ports.EventPublisher = (*EventDispatcher)(nil)

// NewEventDispatcher creates a new event dispatcher. primary may be nil.
func NewEventDispatcher(primary ports.EventPublisher, logger *zap.Logger, local ...ports.EventPublisher) *EventDispatcher {
	return &EventDispatcher{primary: primary, local: local, logger: logger}
}

func (d *EventDispatcher) Publish(ctx context.Context, evts ...events.DomainEvent) error {
	if len(evts) == 0 {
		return nil
	}

	start := time.Now()
	var errs []error
	if d.primary != nil {
		if err := d.primary.Publish(ctx, evts...); err != nil {
			errs = append(errs, err)
		}
	}
	for _, p := range d.local {
		if err := p.Publish(ctx, evts...); err != nil {
			d.logger.Warn("Failed to dispatch events locally",
				zap.Int("count", len(evts)),
				zap.Error(err),
			)
		}
	}

	d.logger.Debug("Events dispatched",
		zap.Int("count", len(evts)),
		zap.Duration("duration", time.Since(start)),
	)
	return errors.Join(errs...)
}

// LogPublisher writes each event to the log. It is the publisher used when
// no event bus is configured.
type LogPublisher struct {
	logger *zap.Logger
}

var _ ports.EventPublisher = (*LogPublisher)(nil)

// NewLogPublisher creates a publisher that only logs.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evts ...events.DomainEvent) error {
	for _, e := range evts {
		p.logger.Info("Domain event",
			zap.String("eventType", e.GetEventType()),
			zap.String("aggregateID", e.GetAggregateID()),
			zap.Int64("version", e.GetVersion()),
			zap.Time("timestamp", e.GetTimestamp()),
		)
	}
	return nil
}
