package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/adminsettings/internal/core/domain"
	"github.com/atvirokodosprendimai/adminsettings/internal/core/ports"
)

const (
	deadLetterAfter = 5
	maxRetryDelay   = 5 * time.Minute
)

// OutboxDispatcher delivers the settings.updated and settings.reset events
// written next to each settings mutation. A section change is committed
// together with its outbox row, so subscribers see every change at least once
// even when the publisher was down at write time.
//
// An event that cannot be delivered is retried after retryDelay and moved to
// the dead letter state on its deadLetterAfter-th failed attempt.
type OutboxDispatcher struct {
	repo      ports.OutboxRepository
	publisher ports.EventPublisher
	interval  time.Duration
	batchSize int

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	delivered    atomic.Int64
	retried      atomic.Int64
	deadLettered atomic.Int64
}

// DeliveryStats counts delivery outcomes since the dispatcher was created.
type DeliveryStats struct {
	Delivered    int64
	Retried      int64
	DeadLettered int64
}

func NewOutboxDispatcher(repo ports.OutboxRepository, publisher ports.EventPublisher, interval time.Duration, batchSize int) *OutboxDispatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &OutboxDispatcher{repo: repo, publisher: publisher, interval: interval, batchSize: batchSize}
}

// Start polls the outbox until Close. Logs go to the logger carried by parent.
func (d *OutboxDispatcher) Start(parent context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.wg.Add(1)
	go d.poll(ctx)
}

// Close stops polling and waits for the batch in flight.
func (d *OutboxDispatcher) Close() error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	return nil
}

func (d *OutboxDispatcher) poll(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.dispatchBatch(ctx); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("settings event batch failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// dispatchBatch delivers up to batchSize due events. Only outbox bookkeeping
// errors abort the batch; delivery failures are recorded on the event.
func (d *OutboxDispatcher) dispatchBatch(ctx context.Context) error {
	due, err := d.repo.FetchPending(ctx, d.batchSize)
	if err != nil {
		return err
	}
	for _, event := range due {
		if err := d.deliver(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (d *OutboxDispatcher) deliver(ctx context.Context, event domain.OutboxEvent) error {
	var envelope domain.EventEnvelope
	if err := json.Unmarshal(event.PayloadJSON, &envelope); err != nil {
		return d.recordFailure(ctx, event, fmt.Sprintf("decode payload: %v", err))
	}

	if err := d.publisher.Publish(ctx, event.Topic, envelope); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("event_id", event.EventID).
			Str("event_type", envelope.EventType).
			Str("tenant", envelope.TenantID).
			Str("section", envelope.AggregateID).
			Int("attempt", event.Attempts+1).
			Msg("settings event not delivered")
		return d.recordFailure(ctx, event, err.Error())
	}

	if err := d.repo.MarkDispatched(ctx, event.ID); err != nil {
		return err
	}
	d.delivered.Add(1)
	return nil
}

func (d *OutboxDispatcher) recordFailure(ctx context.Context, event domain.OutboxEvent, reason string) error {
	attempts := event.Attempts + 1
	if attempts >= deadLetterAfter {
		if err := d.repo.MarkDead(ctx, event.ID, attempts, reason); err != nil {
			return err
		}
		d.deadLettered.Add(1)
		return nil
	}
	next := time.Now().UTC().Add(retryDelay(attempts))
	if err := d.repo.MarkFailed(ctx, event.ID, attempts, next, reason); err != nil {
		return err
	}
	d.retried.Add(1)
	return nil
}

func (d *OutboxDispatcher) Stats() DeliveryStats {
	return DeliveryStats{
		Delivered:    d.delivered.Load(),
		Retried:      d.retried.Load(),
		DeadLettered: d.deadLettered.Load(),
	}
}

// retryDelay is the square of the attempt in seconds, capped at maxRetryDelay.
func retryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return time.Second
	}
	delay := time.Duration(attempt*attempt) * time.Second
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}
