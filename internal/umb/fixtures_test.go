package umb_test

import (
	"encoding/hex"
	"testing"

	"github.com/couchcryptid/road-weather-ingest/internal/umb"
	"github.com/stretchr/testify/require"
)

// metFrameHex is a meteorological unit (device 7) reporting nine channels.
const metFrameHex = "011001F0017055022F11000908006400168BAFDC4108006E0016D8AC9E410800C8001687E27A4208002C0116D2867B440800910116ABF2A2400800F501169145414308006C02160000000008007102160000000008003403160000000003D33A04"

// roadFrameHex is a road-surface unit (device 9) reporting three floats, one
// channel error and a road condition code of 20.
const roadFrameHex = "011001F0019029022F1000050800650016000060400800970016000010C008005902160000003E03282A0305008403101403D3B704"

func mustHex(t *testing.T, s string) umb.Frame {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return umb.Frame(b)
}

func metFrame(t *testing.T) umb.Frame  { return mustHex(t, metFrameHex) }
func roadFrame(t *testing.T) umb.Frame { return mustHex(t, roadFrameHex) }

func roadRecords() []umb.Record {
	return []umb.Record{
		umb.FloatRecord(101, 3.5),
		umb.FloatRecord(151, -2.25),
		umb.FloatRecord(601, 0.125),
		umb.ErrorRecord(810, 0x28),
		umb.CodeRecord(900, 20),
	}
}

func concat(frames ...umb.Frame) []byte {
	var out []byte
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}
