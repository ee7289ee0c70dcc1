package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/road-weather-ingest/internal/config"
	"github.com/couchcryptid/road-weather-ingest/internal/domain"
	"github.com/couchcryptid/road-weather-ingest/internal/observability"
	"github.com/fxamacker/cbor/v2"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"
)

// Writer produces observations to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer  *kafkago.Writer
	encode  encoder
	logger  *slog.Logger
	metrics *observability.Metrics
}

// encoder turns one observation record into a message value.
type encoder struct {
	contentType string
	marshal     func(any) ([]byte, error)
}

// NewWriter creates a Kafka producer for the configured observation topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Writer, error) {
	enc, err := newEncoder(cfg.ObservationEncoding)
	if err != nil {
		return nil, err
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, encode: enc, logger: logger, metrics: metrics}, nil
}

func newEncoder(encoding string) (encoder, error) {
	switch encoding {
	case "", config.EncodingJSON:
		return encoder{contentType: contentTypeJSON, marshal: json.Marshal}, nil
	case config.EncodingCBOR:
		mode, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano, Sort: cbor.SortCanonical}.EncMode()
		if err != nil {
			return encoder{}, fmt.Errorf("cbor encoder: %w", err)
		}
		return encoder{contentType: contentTypeCBOR, marshal: mode.Marshal}, nil
	default:
		return encoder{}, fmt.Errorf("unsupported observation encoding %q", encoding)
	}
}

// LoadBatch serializes and publishes observations in a single WriteMessages
// call. Messages are keyed by station so one station's observations stay on
// one partition in order.
func (w *Writer) LoadBatch(ctx context.Context, obs []domain.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(obs))
	for i := range obs {
		msg, err := serializeToMessage(obs[i], w.encode)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}

	start := time.Now()
	err := w.writer.WriteMessages(ctx, msgs...)
	w.metrics.SinkRequestDuration.WithLabelValues("kafka").Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("write %d observations: %w", len(msgs), err)
	}
	w.logger.Debug("observations published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage encodes an observation into a Kafka message.
func serializeToMessage(obs domain.Observation, enc encoder) (kafkago.Message, error) {
	rec := obs.Record()
	data, err := enc.marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize observation: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.StationID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "station_id", Value: []byte(rec.StationID)},
			{Key: "captured_at", Value: []byte(rec.CapturedAt.Format(time.RFC3339Nano))},
			{Key: "content_type", Value: []byte(enc.contentType)},
		},
	}, nil
}
