package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/couchcryptid/road-weather-ingest/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_InstallsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := NewLogger(&config.Config{LogLevel: "debug", LogFormat: "text"})
	assert.Same(t, logger, slog.Default())
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	logger = NewLogger(&config.Config{LogLevel: "warn", LogFormat: "json"})
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}

func TestMetrics_RegisterWithoutConflict(t *testing.T) {
	m := NewUnregisteredMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, func() (err error) {
		for _, c := range m.collectors() {
			if err = reg.Register(c); err != nil {
				return err
			}
		}
		return nil
	}())

	m.FramesDiscarded.WithLabelValues(ReasonChecksum).Inc()
	m.ChannelAnomalies.WithLabelValues(AnomalyUnmapped).Add(2)
	assert.InDelta(t, 1, testutil.ToFloat64(m.FramesDiscarded.WithLabelValues(ReasonChecksum)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.ChannelAnomalies.WithLabelValues(AnomalyUnmapped)), 0)
}
