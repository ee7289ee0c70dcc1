package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/road-weather-ingest/internal/domain"
	"github.com/couchcryptid/road-weather-ingest/internal/umb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	metHex  = "011001F0017055022F11000908006400168BAFDC4108006E0016D8AC9E410800C8001687E27A4208002C0116D2867B440800910116ABF2A2400800F501169145414308006C02160000000008007102160000000008003403160000000003D33A04"
	roadHex = "011001F0019029022F1000050800650016000060400800970016000010C008005902160000003E03282A0305008403101403D3B704"
)

func decodeOutput(t *testing.T, hexFrame string, checksum bool) decodedFrame {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, runDecode(&buf, hexFrame, domain.DefaultTables(), checksum))
	var out decodedFrame
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestRunDecode_Meteorological(t *testing.T) {
	out := decodeOutput(t, metHex, true)

	assert.Equal(t, uint8(7), out.Device)
	assert.Equal(t, "7001", out.From)
	assert.Equal(t, "F001", out.To)
	assert.Equal(t, 9, out.Channels)
	require.Len(t, out.Fields, 9)
	require.NotNil(t, out.Fields["air_temperature"].Value)
	assert.InDelta(t, 27.59, *out.Fields["air_temperature"].Value, 1e-9)
	assert.InDelta(t, 1006.11, *out.Fields["atmospheric_pressure"].Value, 1e-9)
}

func TestRunDecode_RoadSurface(t *testing.T) {
	out := decodeOutput(t, roadHex, true)

	assert.Equal(t, uint8(9), out.Device)
	require.NotNil(t, out.Fields["road_condition"].Code)
	assert.Equal(t, domain.RoadWet, *out.Fields["road_condition"].Code)
	require.NotNil(t, out.Fields["ice_percentage"].Error)
	assert.Equal(t, 0x28, *out.Fields["ice_percentage"].Error)
}

func TestRunDecode_Checksum(t *testing.T) {
	bad := roadHex[:len(roadHex)-4] + "0004"

	err := runDecode(io.Discard, bad, domain.DefaultTables(), true)
	require.ErrorIs(t, err, umb.ErrChecksum)

	out := decodeOutput(t, bad, false)
	assert.Equal(t, uint8(9), out.Device)
}

func TestParseHex(t *testing.T) {
	for _, in := range []string{"01 10 04", "0x011004", "01:10:04", " 011004\n"} {
		b, err := parseHex(in)
		require.NoError(t, err, in)
		assert.Equal(t, []byte{0x01, 0x10, 0x04}, b, in)
	}
	_, err := parseHex("0G")
	require.Error(t, err)
}

func TestRunGen_IsReproducible(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, runGen(&a, 3, 42, 1))
	require.NoError(t, runGen(&b, 3, 42, 1))
	assert.Equal(t, a.String(), b.String())

	lines := strings.Split(strings.TrimSpace(a.String()), "\n")
	require.Len(t, lines, 6)
	for i, line := range lines {
		raw, err := parseHex(line)
		require.NoError(t, err)
		f := umb.Frame(raw)
		require.NoError(t, umb.NewCRCValidator().Validate(f))
		h, err := f.Header()
		require.NoError(t, err)
		want := domain.DeviceMeteorological
		if i%2 == 1 {
			want = domain.DeviceRoadSurface
		}
		assert.Equal(t, want, h.Device)
	}
}

func TestRunReplay_GeneratedCapture(t *testing.T) {
	var capture bytes.Buffer
	capture.WriteString("# captured by umbtool gen\n\n")
	require.NoError(t, runGen(&capture, 3, 7, 1))

	at := time.Date(2026, time.January, 12, 6, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	err := runReplay(context.Background(), &capture, &out, slog.New(slog.NewTextHandler(io.Discard, nil)), replayOptions{
		station:  "RWS-7",
		framing:  umb.FramingStream,
		tables:   domain.DefaultTables(),
		rules:    domain.DefaultPairRules(),
		checksum: true,
		at:       at,
	})
	require.NoError(t, err)

	scanner := bufio.NewScanner(&out)
	n := 0
	for scanner.Scan() {
		var rec domain.ObservationRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		assert.Equal(t, "RWS-7", rec.StationID)
		assert.True(t, at.Equal(rec.CapturedAt))
		assert.Len(t, rec.Fields, 16)
		n++
	}
	assert.Equal(t, 3, n)
}

func TestRunReplay_BadLine(t *testing.T) {
	in := strings.NewReader(metHex + "\nnot-hex\n")
	err := runReplay(context.Background(), in, io.Discard, slog.New(slog.NewTextHandler(io.Discard, nil)), replayOptions{
		framing: umb.FramingStream,
		tables:  domain.DefaultTables(),
		rules:   domain.DefaultPairRules(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestRunSimulate(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			received <- nil
			return
		}
		defer c.Close()
		b, _ := io.ReadAll(c)
		received <- b
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runSimulate(ctx, io.Discard, ln.Addr().String(), "RWS-SIM", 2, time.Millisecond, 3, 1))

	var data []byte
	select {
	case data = <-received:
	case <-ctx.Done():
		t.Fatal("listener received nothing")
	}
	require.True(t, bytes.HasPrefix(data, []byte("RWS-SIM")))

	frames := umb.NewStreamAssembler(umb.AssemblerOptions{}).Feed(data[len("RWS-SIM"):])
	assert.Len(t, frames, 4)
}
