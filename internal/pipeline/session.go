package pipeline

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/couchcryptid/road-weather-ingest/internal/domain"
	"github.com/couchcryptid/road-weather-ingest/internal/observability"
	"github.com/couchcryptid/road-weather-ingest/internal/umb"
)

// Sink receives merged observations. Submit may block to apply back-pressure
// and returns an error only when ctx ends first.
type Sink interface {
	Submit(ctx context.Context, obs domain.Observation) error
}

// Codec bundles the shared, stateless decode stages. One Codec serves every
// connection; each Session adds its own assembler and pairing state.
type Codec struct {
	Framing       string
	MaxFrameBytes int
	Validator     umb.Validator
	Decoder       *umb.Decoder
	Pairing       *domain.Pairing
}

// NewCodec wires the decode stages for the given channel tables and pair rules.
func NewCodec(framing string, maxFrameBytes int, checksum bool, tables domain.Tables, rules []domain.PairRule) Codec {
	return Codec{
		Framing:       framing,
		MaxFrameBytes: maxFrameBytes,
		Validator:     umb.NewValidator(checksum),
		Decoder:       umb.NewDecoder(domain.NewFieldMapper(tables)),
		Pairing:       domain.NewPairing(rules),
	}
}

// Session runs one station connection through assemble, validate, decode and
// correlate. It is not safe for concurrent use; the owning connection
// goroutine feeds it sequentially.
type Session struct {
	stationID string
	codec     Codec
	assembler umb.Assembler
	state     domain.CorrelatorState
	sink      Sink
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewSession creates the pipeline state for one registered station.
func NewSession(stationID string, codec Codec, sink Sink, logger *slog.Logger, metrics *observability.Metrics) *Session {
	s := &Session{
		stationID: stationID,
		codec:     codec,
		sink:      sink,
		logger:    logger,
		metrics:   metrics,
	}
	s.assembler = umb.NewAssembler(codec.Framing, umb.AssemblerOptions{
		MaxFrameBytes: codec.MaxFrameBytes,
		OnDiscard:     s.discarded,
	})
	return s
}

// StationID returns the registration id the session was created with.
func (s *Session) StationID() string { return s.stationID }

// Feed processes one chunk read from the connection. Data-quality problems
// are counted and logged but never returned; the only error is the sink
// refusing an observation because ctx ended.
func (s *Session) Feed(ctx context.Context, chunk []byte) error {
	s.metrics.BytesReceived.Add(float64(len(chunk)))
	for _, f := range s.assembler.Feed(chunk) {
		s.metrics.FramesAssembled.Inc()
		if err := s.handleFrame(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// Close drops any buffered partial frame and any pending pair half.
func (s *Session) Close() {
	if dev, ok := s.state.Pending(); ok {
		s.metrics.PairsDiscarded.WithLabelValues("disconnect").Inc()
		s.logger.Debug("pending frame dropped on disconnect", "device", dev)
	}
	s.state = s.state.Reset()
	s.assembler.Reset()
}

func (s *Session) handleFrame(ctx context.Context, f umb.Frame) error {
	if err := s.codec.Validator.Validate(f); err != nil {
		s.metrics.FramesDiscarded.WithLabelValues(observability.ReasonChecksum).Inc()
		s.logger.Warn("frame rejected", "error", err, "frame_len", len(f))
		return nil
	}

	decoded, err := s.codec.Decoder.Decode(f)
	if err != nil {
		s.metrics.FramesDiscarded.WithLabelValues(observability.ReasonCorrupt).Inc()
		s.logger.Warn("frame corrupt", "error", err, "frame_len", len(f))
		return nil
	}

	dev := decoded.Header.Device
	s.metrics.FramesDecoded.WithLabelValues(strconv.Itoa(int(dev))).Inc()
	s.countAnomalies(dev, decoded.Fields)

	next, tr := s.codec.Pairing.Next(s.state, s.stationID, dev, decoded.Fields)
	s.state = next

	switch tr.Outcome {
	case domain.OutcomeRepeat, domain.OutcomeUnpaired:
		s.metrics.PairsDiscarded.WithLabelValues(tr.Outcome.String()).Inc()
		s.logger.Debug("pending frame dropped", "reason", tr.Outcome.String(), "dropped_device", tr.Dropped, "device", dev)
	case domain.OutcomeMerged:
		s.metrics.ObservationsCorrelated.Inc()
		s.logger.Debug("observation correlated", "devices", tr.Observation.Devices, "fields", len(tr.Observation.Fields))
		return s.sink.Submit(ctx, *tr.Observation)
	}
	return nil
}

func (s *Session) countAnomalies(dev domain.DeviceID, fields []domain.DecodedField) {
	for _, f := range fields {
		if !f.Mapped {
			s.metrics.ChannelAnomalies.WithLabelValues(observability.AnomalyUnmapped).Inc()
			s.logger.Debug("unmapped channel", "device", dev, "channel", f.Channel)
		}
		code, ok := f.Value.ErrorCode()
		if !ok {
			continue
		}
		kind := observability.AnomalyDeviceError
		switch code {
		case domain.CodeMalformed:
			kind = observability.AnomalyMalformed
		case domain.CodeNonFinite:
			kind = observability.AnomalyNonFinite
		}
		s.metrics.ChannelAnomalies.WithLabelValues(kind).Inc()
		s.logger.Debug("channel error", "device", dev, "channel", f.Channel, "kind", kind, "code", code)
	}
}

func (s *Session) discarded(reason umb.DiscardReason, n int) {
	s.metrics.BytesDiscarded.WithLabelValues(string(reason)).Add(float64(n))
	if reason == umb.DiscardOverflow {
		s.metrics.FramesDiscarded.WithLabelValues(observability.ReasonOverflow).Inc()
		s.logger.Warn("partial frame exceeded buffer cap", "bytes", n)
		return
	}
	s.logger.Debug("noise discarded", "bytes", n)
}
