package collector

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/road-weather-ingest/internal/domain"
	"github.com/couchcryptid/road-weather-ingest/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string, timeout time.Duration) *Client {
	return NewClient(url, timeout, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewUnregisteredMetrics())
}

func testObservations() []domain.Observation {
	at := time.Date(2026, 1, 12, 6, 30, 0, 0, time.UTC)
	return []domain.Observation{
		{
			StationID:  "RWS-1",
			CapturedAt: at,
			Devices:    []domain.DeviceID{domain.DeviceMeteorological, domain.DeviceRoadSurface},
			Fields:     map[string]domain.Value{"air_temperature": domain.FloatValue(2.5)},
		},
		{
			StationID:  "RWS-2",
			CapturedAt: at,
			Devices:    []domain.DeviceID{domain.DeviceMeteorological, domain.DeviceRoadSurface},
			Fields:     map[string]domain.Value{"road_condition": domain.CodeValue(domain.RoadWet)},
		},
	}
}

func TestClient_LoadBatch_Success(t *testing.T) {
	var got batch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5*time.Second)
	require.NoError(t, c.LoadBatch(context.Background(), testObservations()))

	require.Len(t, got.Observations, 2)
	assert.Equal(t, "RWS-1", got.Observations[0].StationID)
	require.NotNil(t, got.Observations[1].Fields["road_condition"].Code)
	assert.Equal(t, domain.RoadWet, *got.Observations[1].Fields["road_condition"].Code)
	assert.Equal(t, 1, testutil.CollectAndCount(c.metrics.SinkRequestDuration))
}

func TestClient_LoadBatch_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected for an empty batch")
	}))
	defer srv.Close()

	require.NoError(t, testClient(srv.URL, time.Second).LoadBatch(context.Background(), nil))
}

func TestClient_LoadBatch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("collector overloaded\n"))
	}))
	defer srv.Close()

	err := testClient(srv.URL, 5*time.Second).LoadBatch(context.Background(), testObservations())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "collector overloaded")
}

func TestClient_LoadBatch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := testClient(srv.URL, 50*time.Millisecond).LoadBatch(context.Background(), testObservations())
	require.Error(t, err)
}
