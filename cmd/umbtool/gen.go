package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/road-weather-ingest/internal/domain"
	"github.com/couchcryptid/road-weather-ingest/internal/umb"
	"github.com/couchcryptid/storm-data-shared/retry"
)

var (
	genCount int
	genSeed  uint64
	genUnit  uint8

	simAddr     string
	simStation  string
	simInterval time.Duration
)

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Print synthetic device pairs as hex",
	Long: `Gen prints one meteorological frame and one road-surface frame per pair,
one hex frame per line. The output can be fed to replay.`,
	Example: `  # Three pairs, reproducible
  umbtool gen --count 3 --seed 42 > capture.hex`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runGen(cmd.OutOrStdout(), genCount, genSeed, genUnit)
	},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Act as a station against an ingest service",
	Long: `Simulate connects to the station listener, sends the registration id and
then one synthetic device pair per interval.`,
	Example: `  umbtool simulate --addr localhost:18120 --station RWS-TEST --count 10 --interval 2s`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSimulate(cmd.Context(), cmd.ErrOrStderr(), simAddr, simStation, genCount, simInterval, genSeed, genUnit)
	},
}

func init() {
	for _, c := range []*cobra.Command{genCmd, simulateCmd} {
		c.Flags().IntVar(&genCount, "count", 1, "number of device pairs")
		c.Flags().Uint64Var(&genSeed, "seed", 0, "random seed (0 picks one from the clock)")
		c.Flags().Uint8Var(&genUnit, "unit", 1, "unit number in the source address")
	}
	simulateCmd.Flags().StringVar(&simAddr, "addr", "localhost:18120", "station listener address")
	simulateCmd.Flags().StringVar(&simStation, "station", "RWS-SIM", "registration id sent on connect")
	simulateCmd.Flags().DurationVar(&simInterval, "interval", time.Second, "delay between device pairs")
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
}

// roadCodes are raw device codes for the road condition channel.
var roadCodes = []byte{10, 15, 20, 25, 30, 35, 40, 45}

// samplePair builds a plausible meteorological and road-surface frame.
func samplePair(r *rand.Rand, unit uint8) (umb.Frame, umb.Frame, error) {
	air := between(r, -15, 30)
	met, err := umb.EncodeFrame(umb.FrameSpec{Device: domain.DeviceMeteorological, Unit: unit}, []umb.Record{
		umb.FloatRecord(100, air),
		umb.FloatRecord(110, air-between(r, 0, 8)),
		umb.FloatRecord(200, between(r, 30, 100)),
		umb.FloatRecord(300, between(r, 980, 1040)),
		umb.FloatRecord(401, between(r, 0, 20)),
		umb.FloatRecord(501, between(r, 0, 359)),
		umb.FloatRecord(620, between(r, 0, 50)),
		umb.FloatRecord(625, between(r, 0, 5)),
		umb.FloatRecord(820, between(r, 0, 10)),
	})
	if err != nil {
		return nil, nil, err
	}
	road, err := umb.EncodeFrame(umb.FrameSpec{Device: domain.DeviceRoadSurface, Unit: unit}, []umb.Record{
		umb.FloatRecord(101, air+between(r, -3, 3)),
		umb.FloatRecord(151, between(r, -10, 0)),
		umb.FloatRecord(601, between(r, 0, 2)),
		umb.FloatRecord(801, between(r, 0, 20)),
		umb.FloatRecord(810, between(r, 0, 100)),
		umb.FloatRecord(820, between(r, 0.1, 0.82)),
		umb.CodeRecord(900, roadCodes[r.IntN(len(roadCodes))]),
	})
	if err != nil {
		return nil, nil, err
	}
	return met, road, nil
}

// between returns a value in [lo, hi) rounded to two decimals.
func between(r *rand.Rand, lo, hi float64) float32 {
	return float32(math.Round((lo+r.Float64()*(hi-lo))*100) / 100)
}

func runGen(w io.Writer, count int, seed uint64, unit uint8) error {
	r := newRand(seed)
	for i := 0; i < count; i++ {
		met, road, err := samplePair(r, unit)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\n%s\n", strings.ToUpper(hex.EncodeToString(met)), strings.ToUpper(hex.EncodeToString(road))); err != nil {
			return err
		}
	}
	return nil
}

func runSimulate(ctx context.Context, log io.Writer, addr, station string, count int, interval time.Duration, seed uint64, unit uint8) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(station)); err != nil {
		return fmt.Errorf("send registration: %w", err)
	}
	fmt.Fprintf(log, "connected to %s as %s\n", addr, station)

	r := newRand(seed)
	for i := 0; i < count; i++ {
		// Keep the registration id in its own read on the listener side.
		if !retry.SleepWithContext(ctx, interval) {
			return ctx.Err()
		}
		met, road, err := samplePair(r, unit)
		if err != nil {
			return err
		}
		if _, err := conn.Write(append(met, road...)); err != nil {
			return fmt.Errorf("send pair %d: %w", i+1, err)
		}
		fmt.Fprintf(log, "sent pair %d/%d\n", i+1, count)
	}
	return nil
}
