// Package eventbridge publishes domain events to an AWS EventBridge bus.
package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"todoflow/application/ports"
	"todoflow/domain/events"
)

const (
	// Source is the EventBridge source of every todoflow event.
	Source = "todoflow.api"

	// maxBatch is the PutEvents entry limit.
	maxBatch       = 10
	maxAttempts    = 3
	initialBackoff = 100 * time.Millisecond
)

// API is the subset of the EventBridge client the publisher uses.
type API interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

var _ API = (*eventbridge.Client)(nil)

// Publisher implements ports.EventPublisher using AWS EventBridge. Batches
// are sent concurrently; entries rejected with a transient error code are
// retried with exponential backoff.
type Publisher struct {
	client       API
	eventBusName string
	logger       *zap.Logger
	backoff      time.Duration
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a new EventBridge publisher
func NewPublisher(client API, eventBusName string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:       client,
		eventBusName: eventBusName,
		logger:       logger,
		backoff:      initialBackoff,
	}
}

// Publish sends events in batches of at most ten.
func (p *Publisher) Publish(ctx context.Context, domainEvents ...events.DomainEvent) error {
	if len(domainEvents) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < len(domainEvents); i += maxBatch {
		batch := domainEvents[i:min(i+maxBatch, len(domainEvents))]
		g.Go(func() error {
			return p.publishWithRetry(ctx, batch)
		})
	}
	return g.Wait()
}

func (p *Publisher) publishWithRetry(ctx context.Context, batch []events.DomainEvent) error {
	entries, err := p.entries(batch)
	if err != nil {
		return err
	}

	backoff := p.backoff
	for attempt := 1; ; attempt++ {
		failed, err := p.put(ctx, entries)
		if err == nil && len(failed) == 0 {
			p.logger.Debug("Events published to EventBridge",
				zap.Int("count", len(batch)),
				zap.String("eventBus", p.eventBusName),
			)
			return nil
		}
		if err != nil && !isRetryable(err) {
			return fmt.Errorf("failed to publish events to EventBridge: %w", err)
		}
		if attempt == maxAttempts {
			if err != nil {
				return fmt.Errorf("failed to publish events after %d attempts: %w", attempt, err)
			}
			return fmt.Errorf("%d events failed to publish after %d attempts", len(failed), attempt)
		}
		if err == nil {
			entries = failed
		}

		p.logger.Warn("Retrying event publication",
			zap.Int("attempt", attempt),
			zap.Int("entries", len(entries)),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// put sends entries and returns those rejected with a retryable error code.
// Entries rejected permanently are logged and dropped.
func (p *Publisher) put(ctx context.Context, entries []types.PutEventsRequestEntry) ([]types.PutEventsRequestEntry, error) {
	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return nil, err
	}
	if out.FailedEntryCount == 0 {
		return nil, nil
	}

	var retry []types.PutEventsRequestEntry
	for i, result := range out.Entries {
		if result.ErrorCode == nil || i >= len(entries) {
			continue
		}
		code := aws.ToString(result.ErrorCode)
		if retryableCodes[code] {
			retry = append(retry, entries[i])
			continue
		}
		p.logger.Error("Failed to publish event",
			zap.String("eventType", aws.ToString(entries[i].DetailType)),
			zap.String("errorCode", code),
			zap.String("errorMessage", aws.ToString(result.ErrorMessage)),
		)
	}
	return retry, nil
}

func (p *Publisher) entries(batch []events.DomainEvent) ([]types.PutEventsRequestEntry, error) {
	entries := make([]types.PutEventsRequestEntry, 0, len(batch))
	for _, event := range batch {
		detail, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("marshal %s event: %w", event.GetEventType(), err)
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.eventBusName),
			Source:       aws.String(Source),
			DetailType:   aws.String(event.GetEventType()),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(event.GetTimestamp()),
			Resources:    []string{fmt.Sprintf("todoflow:%s", event.GetAggregateID())},
		})
	}
	return entries, nil
}

var retryableCodes = map[string]bool{
	"InternalFailure":     true,
	"ThrottlingException": true,
}

func isRetryable(err error) bool {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorFault() == smithy.FaultServer || retryableCodes[ae.ErrorCode()]
	}
	return false
}
