package pipeline

import (
	"context"
	"time"

	"github.com/couchcryptid/road-weather-ingest/internal/domain"
	"github.com/couchcryptid/road-weather-ingest/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Queue hands observations from station sessions to the sink loop. It
// implements Sink on the producer side and BatchExtractor on the consumer side.
type Queue struct {
	ch            chan domain.Observation
	flushInterval time.Duration
	clock         clockwork.Clock
	metrics       *observability.Metrics
}

// QueueOption customizes a Queue.
type QueueOption func(*Queue)

// WithClock sets the clock driving the flush timer.
func WithClock(c clockwork.Clock) QueueOption {
	return func(q *Queue) { q.clock = c }
}

// NewQueue creates a queue holding at most size observations.
func NewQueue(size int, flushInterval time.Duration, metrics *observability.Metrics, opts ...QueueOption) *Queue {
	q := &Queue{
		ch:            make(chan domain.Observation, size),
		flushInterval: flushInterval,
		clock:         clockwork.NewRealClock(),
		metrics:       metrics,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit enqueues obs, blocking while the queue is full.
func (q *Queue) Submit(ctx context.Context, obs domain.Observation) error {
	select {
	case q.ch <- obs:
		q.metrics.QueueDepth.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExtractBatch waits for the first observation, then collects more until
// batchSize is reached or the flush interval elapses.
func (q *Queue) ExtractBatch(ctx context.Context, batchSize int) ([]domain.Observation, error) {
	var batch []domain.Observation
	select {
	case obs := <-q.ch:
		batch = append(batch, obs)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timer := q.clock.NewTimer(q.flushInterval)
	defer timer.Stop()

	for len(batch) < batchSize {
		select {
		case obs := <-q.ch:
			batch = append(batch, obs)
		case <-timer.Chan():
			return q.took(batch), nil
		case <-ctx.Done():
			return q.took(batch), nil
		}
	}
	return q.took(batch), nil
}

// Drain removes and returns everything currently queued without waiting.
func (q *Queue) Drain() []domain.Observation {
	var out []domain.Observation
	for {
		select {
		case obs := <-q.ch:
			out = append(out, obs)
		default:
			return q.took(out)
		}
	}
}

// Len reports the observations currently queued.
func (q *Queue) Len() int { return len(q.ch) }

func (q *Queue) took(batch []domain.Observation) []domain.Observation {
	q.metrics.QueueDepth.Sub(float64(len(batch)))
	return batch
}
