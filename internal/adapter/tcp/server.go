// Package tcp accepts station connections and feeds their byte streams into
// per-connection pipeline sessions.
package tcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/road-weather-ingest/internal/observability"
	"github.com/couchcryptid/road-weather-ingest/internal/pipeline"
	"github.com/couchcryptid/road-weather-ingest/internal/umb"
)

// Options tunes connection handling.
type Options struct {
	ReadTimeout         time.Duration
	RegistrationTimeout time.Duration
	ReadBufferSize      int
}

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 5 * time.Minute
	}
	if o.RegistrationTimeout <= 0 {
		o.RegistrationTimeout = 30 * time.Second
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = 4096
	}
	return o
}

// Station describes one open station connection.
type Station struct {
	StationID     string    `json:"station_id"`
	RemoteAddr    string    `json:"remote_addr"`
	ConnectedAt   time.Time `json:"connected_at"`
	BytesReceived int64     `json:"bytes_received"`
}

type conn struct {
	net.Conn
	stationID   atomic.Value // string
	connectedAt time.Time
	bytes       atomic.Int64
}

// Server is the station listener.
type Server struct {
	addr    string
	codec   pipeline.Codec
	sink    pipeline.Sink
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	listener net.Listener
	conns    map[*conn]struct{}
	closing  bool
	wg       sync.WaitGroup
	serving  atomic.Bool
}

// NewServer creates a station listener for addr. Every connection gets its
// own pipeline.Session built from codec and delivering to sink.
func NewServer(addr string, codec pipeline.Codec, sink pipeline.Sink, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Server {
	return &Server{
		addr:    addr,
		codec:   codec,
		sink:    sink,
		opts:    opts.withDefaults(),
		logger:  logger,
		metrics: metrics,
		conns:   make(map[*conn]struct{}),
	}
}

// ListenAndServe listens on the configured address and serves until ctx ends
// or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends or Shutdown is called. It
// returns nil after a clean stop.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	s.serving.Store(true)
	defer s.serving.Store(false)
	s.logger.Info("station listener started", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		c := &conn{Conn: nc, connectedAt: time.Now().UTC()}
		if !s.track(c) {
			continue
		}
		go func() {
			defer s.wg.Done()
			defer s.untrack(c)
			s.handle(ctx, c)
		}()
	}
}

// Addr returns the listener address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// CheckReadiness returns nil while the listener is accepting connections.
func (s *Server) CheckReadiness(_ context.Context) error {
	if !s.serving.Load() {
		return errors.New("station listener is not accepting connections")
	}
	return nil
}

// Shutdown stops accepting, closes every station connection and waits for
// the connection goroutines to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("station connections still open: %w", ctx.Err())
	}
}

// Stations lists the open connections ordered by station id.
func (s *Server) Stations() []Station {
	s.mu.Lock()
	out := make([]Station, 0, len(s.conns))
	for c := range s.conns {
		id, _ := c.stationID.Load().(string)
		out = append(out, Station{
			StationID:     id,
			RemoteAddr:    c.RemoteAddr().String(),
			ConnectedAt:   c.connectedAt,
			BytesReceived: c.bytes.Load(),
		})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StationID != out[j].StationID {
			return out[i].StationID < out[j].StationID
		}
		return out[i].RemoteAddr < out[j].RemoteAddr
	})
	return out
}

// track registers c and its goroutine. After Shutdown it closes c instead
// and returns false.
func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = c.Close()
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()
	s.metrics.ConnectionsTotal.Inc()
	s.metrics.ConnectionsActive.Inc()
	return true
}

func (s *Server) untrack(c *conn) {
	_ = c.Close()
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.metrics.ConnectionsActive.Dec()
}

func (s *Server) handle(ctx context.Context, c *conn) {
	remote := c.RemoteAddr().String()
	logger := s.logger.With("remote_addr", remote)
	buf := make([]byte, s.opts.ReadBufferSize)

	_ = c.SetReadDeadline(time.Now().Add(s.opts.RegistrationTimeout))
	n, err := c.Read(buf)
	if n == 0 {
		logger.Warn("station closed before registering", "error", err)
		return
	}
	c.bytes.Add(int64(n))

	stationID, rest := Register(buf[:n], remote)
	c.stationID.Store(stationID)
	logger = logger.With("station_id", stationID)
	logger.Info("station connected")

	session := pipeline.NewSession(stationID, s.codec, s.sink, logger, s.metrics)
	defer session.Close()

	if len(rest) > 0 {
		if err := session.Feed(ctx, rest); err != nil {
			return
		}
	}

	for {
		_ = c.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		n, err := c.Read(buf)
		if n > 0 {
			c.bytes.Add(int64(n))
			if ferr := session.Feed(ctx, buf[:n]); ferr != nil {
				logger.Info("station session stopped", "reason", ferr)
				return
			}
		}
		if err != nil {
			s.logDisconnect(logger, err)
			return
		}
	}
}

func (s *Server) logDisconnect(logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.Info("station disconnected")
	case errors.Is(err, os.ErrDeadlineExceeded):
		logger.Warn("station idle timeout", "timeout", s.opts.ReadTimeout)
	case errors.Is(err, net.ErrClosed):
		logger.Info("station connection closed")
	default:
		logger.Warn("station read failed", "error", err)
	}
}

// maxStationIDLen bounds the registration id taken from the first chunk.
const maxStationIDLen = 64

// Register splits the first chunk of a connection into the station
// registration id and the bytes that follow it. The id is the printable ASCII
// before the first SOH. When there is none, or it is not printable, the remote
// address is used and the whole chunk is returned for decoding.
func Register(first []byte, remoteAddr string) (string, []byte) {
	idPart, rest := first, []byte(nil)
	if i := bytes.IndexByte(first, umb.SOH); i >= 0 {
		idPart, rest = first[:i], first[i:]
	}
	id := string(bytes.TrimSpace(idPart))
	if id == "" || len(id) > maxStationIDLen || !printable(id) {
		return remoteAddr, first
	}
	return id, rest
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return false
		}
	}
	return true
}
