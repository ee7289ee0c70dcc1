// Package collector posts observation batches to an HTTP collector endpoint.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/road-weather-ingest/internal/domain"
	"github.com/couchcryptid/road-weather-ingest/internal/observability"
)

const sinkName = "collector"

// Client delivers observations to a collector over HTTP.
// It implements pipeline.BatchLoader.
type Client struct {
	url        string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a collector client posting to url.
func NewClient(url string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// batch is the request body.
type batch struct {
	Observations []domain.ObservationRecord `json:"observations"`
}

// LoadBatch posts the observations as one JSON document. Any non-2xx response
// fails the whole batch.
func (c *Client) LoadBatch(ctx context.Context, obs []domain.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	body := batch{Observations: make([]domain.ObservationRecord, len(obs))}
	for i := range obs {
		body.Observations[i] = obs[i].Record()
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("serialize observations: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.SinkRequestDuration.WithLabelValues(sinkName).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("collector request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("collector error: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Debug("observations delivered", "count", len(obs), "status", resp.StatusCode)
	return nil
}
