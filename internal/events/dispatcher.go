package events

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/Leozerbib/gile-back-sub001/internal/embedding/providers"
	"github.com/Leozerbib/gile-back-sub001/internal/models"
	"github.com/Leozerbib/gile-back-sub001/internal/observability"
)

// ErrQueueFull is returned by Enqueue when the bounded event queue cannot
// accept another event. Upstream producers back off or redeliver.
var ErrQueueFull = errors.New("event queue is full")

const (
	defaultQueueCapacity  = 256
	defaultWorkers        = 4
	defaultMaxEventElapse = 5 * time.Minute
	drainTimeout          = 30 * time.Second
)

// Handler routes validated change events into the indexing pipeline.
type Handler interface {
	ProcessEntityForEmbedding(ctx context.Context, ref models.EntityRef) error
	RemoveEntityEmbedding(ctx context.Context, ref models.EntityRef) error
}

// DeadLetter receives events whose redelivery budget is exhausted.
type DeadLetter interface {
	SendToDeadLetter(ctx context.Context, ev EntityChangeEvent, cause error)
}

// Config sizes the dispatcher.
type Config struct {
	Capacity       int
	Workers        int
	MaxEventElapse time.Duration
}

// Dispatcher fans change events out to a fixed worker pool over a bounded
// channel. Each worker retries transient handler failures with exponential
// backoff before handing the event to the dead-letter sink.
type Dispatcher struct {
	queue     chan EntityChangeEvent
	workers   int
	maxElapse time.Duration
	handler   Handler
	idem      *IdempotencyGuard
	dlq       DeadLetter
	metrics   observability.MetricsClient
	logger    observability.Logger
}

// NewDispatcher creates a dispatcher. The idempotency guard, dead-letter
// sink and metrics client are optional.
func NewDispatcher(
	cfg Config,
	handler Handler,
	idem *IdempotencyGuard,
	dlq DeadLetter,
	metrics observability.MetricsClient,
	logger observability.Logger,
) *Dispatcher {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultQueueCapacity
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxEventElapse <= 0 {
		cfg.MaxEventElapse = defaultMaxEventElapse
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Dispatcher{
		queue:     make(chan EntityChangeEvent, cfg.Capacity),
		workers:   cfg.Workers,
		maxElapse: cfg.MaxEventElapse,
		handler:   handler,
		idem:      idem,
		dlq:       dlq,
		metrics:   metrics,
		logger:    logger.WithPrefix("dispatcher"),
	}
}

// Enqueue validates and queues an event without blocking. It returns
// ErrQueueFull when the queue is at capacity.
func (d *Dispatcher) Enqueue(ctx context.Context, ev EntityChangeEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	select {
	case d.queue <- ev:
		if d.metrics != nil {
			d.metrics.IncrementCounterWithLabels("indexer_events_accepted_total", 1, map[string]string{
				"type": ev.Type,
			})
			d.metrics.RecordGauge("indexer_event_queue_depth", float64(len(d.queue)), nil)
		}
		return nil
	default:
		if d.metrics != nil {
			d.metrics.IncrementCounter("indexer_events_rejected_total", 1)
		}
		return ErrQueueFull
	}
}

// QueueDepth reports how many events are waiting.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

// Run starts the worker pool and blocks until the context is cancelled and
// all workers have drained the events already accepted.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher starting", map[string]interface{}{
		"workers":  d.workers,
		"capacity": cap(d.queue),
	})

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			d.runWorker(ctx)
			return nil
		})
	}
	err := g.Wait()

	d.logger.Info("dispatcher stopped", nil)
	return err
}

func (d *Dispatcher) runWorker(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.handleEvent(ctx, ev)
		case <-ctx.Done():
			d.drain(ctx)
			return
		}
	}
}

// drain handles the events already accepted so shutdown does not silently
// drop them.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.handleEvent(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) handleEvent(ctx context.Context, ev EntityChangeEvent) {
	// Cancellation stops intake, not events already accepted; once the run
	// context is gone each remaining event gets a bounded one of its own.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
	}

	if d.idem != nil && !d.idem.FirstDelivery(ctx, ev.ID) {
		d.logger.Info("duplicate event dropped", map[string]interface{}{
			"event_id": ev.ID,
			"entity":   ev.Ref().Key(),
		})
		if d.metrics != nil {
			d.metrics.IncrementCounter("indexer_events_duplicate_total", 1)
		}
		return
	}

	err := d.deliverWithRetry(ctx, ev)
	if d.metrics != nil {
		d.metrics.RecordGauge("indexer_event_queue_depth", float64(len(d.queue)), nil)
	}
	if err == nil {
		return
	}

	d.logger.Error("event exhausted its redelivery budget", map[string]interface{}{
		"event_id": ev.ID,
		"type":     ev.Type,
		"entity":   ev.Ref().Key(),
		"error":    err.Error(),
	})
	if d.metrics != nil {
		d.metrics.IncrementCounterWithLabels("indexer_events_dead_lettered_total", 1, map[string]string{
			"type": ev.Type,
		})
	}
	if d.dlq != nil {
		d.dlq.SendToDeadLetter(ctx, ev, err)
	}
}

// deliverWithRetry routes the event and retries transient failures with
// exponential backoff until MaxEventElapse is spent. Permanent failures
// stop immediately.
func (d *Dispatcher) deliverWithRetry(ctx context.Context, ev EntityChangeEvent) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = d.maxElapse

	attempt := 0
	operation := func() error {
		attempt++
		err := d.route(ctx, ev)
		if err == nil {
			return nil
		}
		if !providers.Retryable(err) {
			return backoff.Permanent(err)
		}
		d.logger.Warn("event handling failed, backing off", map[string]interface{}{
			"event_id": ev.ID,
			"attempt":  attempt,
			"error":    err.Error(),
		})
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	if err == nil && attempt > 1 {
		d.logger.Info("event handled after redelivery", map[string]interface{}{
			"event_id": ev.ID,
			"attempts": attempt,
		})
	}
	return err
}

func (d *Dispatcher) route(ctx context.Context, ev EntityChangeEvent) error {
	if ev.Type == TypeDeleted {
		return d.handler.RemoveEntityEmbedding(ctx, ev.Ref())
	}
	return d.handler.ProcessEntityForEmbedding(ctx, ev.Ref())
}
