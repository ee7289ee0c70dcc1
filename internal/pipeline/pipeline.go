package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/road-weather-ingest/internal/domain"
	"github.com/couchcryptid/road-weather-ingest/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
)

// BatchExtractor reads up to batchSize observations waiting for delivery.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.Observation, error)
}

// BatchLoader delivers observations to a destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, obs []domain.Observation) error
}

// Drainer hands back whatever is buffered without blocking.
type Drainer interface {
	Drain() []domain.Observation
}

// Pipeline moves observations from the queue to the sinks in batches,
// retrying a failed batch with exponential backoff until it is delivered.
type Pipeline struct {
	extractor BatchExtractor
	loader    BatchLoader
	logger    *slog.Logger
	metrics   *observability.Metrics
	running   atomic.Bool
	batchSize int

	// pending is a batch that failed to load and will be retried. Only the
	// Run goroutine, and Drain after Run returns, touch it.
	pending []domain.Observation
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		loader:    l,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil while the delivery loop is running.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.running.Load() {
		return errors.New("sink pipeline is not running")
	}
	return nil
}

// Run executes the delivery loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.running.Store(true)
	p.metrics.PipelineRunning.Set(1)
	defer func() {
		p.running.Store(false)
		p.metrics.PipelineRunning.Set(0)
	}()

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err(), "undelivered", len(p.pending))
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// processBatch runs one extract-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	if p.pending == nil {
		batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			p.logger.Error("extract batch failed", "error", err)
			return p.backoffOrStop(ctx, backoff)
		}
		if len(batch) == 0 {
			return ctx.Err() == nil
		}
		p.metrics.BatchSize.Observe(float64(len(batch)))
		p.pending = batch
	}

	start := time.Now()
	if err := p.loader.LoadBatch(ctx, p.pending); err != nil {
		p.metrics.LoadErrors.Inc()
		p.logger.Error("load batch failed", "error", err, "batch_size", len(p.pending), "retry_in", *backoff)
		return p.backoffOrStop(ctx, backoff)
	}

	p.metrics.ObservationsLoaded.Add(float64(len(p.pending)))
	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	p.pending = nil
	*backoff = initialBackoff
	return true
}

// Drain makes one last delivery attempt for the retry batch and everything
// still queued. Call it after Run has returned.
func (p *Pipeline) Drain(ctx context.Context) error {
	batch := p.pending
	p.pending = nil
	if d, ok := p.extractor.(Drainer); ok {
		batch = append(batch, d.Drain()...)
	}
	if len(batch) == 0 {
		return nil
	}
	if err := p.loader.LoadBatch(ctx, batch); err != nil {
		p.metrics.LoadErrors.Inc()
		return err
	}
	p.metrics.ObservationsLoaded.Add(float64(len(batch)))
	p.logger.Info("drained queued observations", "count", len(batch))
	return nil
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}
