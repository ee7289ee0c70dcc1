package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/road-weather-ingest/internal/config"
	"github.com/couchcryptid/road-weather-ingest/internal/domain"
	"github.com/couchcryptid/road-weather-ingest/internal/observability"
	"github.com/couchcryptid/road-weather-ingest/internal/pipeline"
	"github.com/couchcryptid/road-weather-ingest/internal/umb"
)

var (
	replayStation string
	replayFraming string
	replayPairs   string
	replayAt      string
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Replay a hex capture into observations",
	Long: `Replay feeds a capture file through the same session pipeline the ingest
service runs per connection and prints each merged observation as one JSON
line. Every non-empty line of the file is one hex-encoded read chunk; lines
starting with # are ignored. Use - to read from stdin.`,
	Example: `  umbtool gen --count 5 --seed 1 | umbtool replay --at 2026-01-12T06:00:00Z -`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := replayOptionsFromFlags()
		if err != nil {
			return err
		}
		in := cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		return runReplay(cmd.Context(), in, cmd.OutOrStdout(), stderrLogger(), opts)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayStation, "station", "replay", "station id stamped on observations")
	replayCmd.Flags().StringVar(&replayFraming, "framing", umb.FramingStream, "framing mode (stream or chunk)")
	replayCmd.Flags().StringVar(&replayPairs, "pairs", "7:9", "ordered complementary device pairs")
	replayCmd.Flags().StringVar(&replayAt, "at", "", "fixed RFC 3339 capture time for reproducible output")
}

type replayOptions struct {
	station  string
	framing  string
	tables   domain.Tables
	rules    []domain.PairRule
	checksum bool
	at       time.Time
}

func replayOptionsFromFlags() (replayOptions, error) {
	tables, err := config.LoadChannelTables(tablesPath)
	if err != nil {
		return replayOptions{}, err
	}
	rules, err := config.ParsePairRules(replayPairs)
	if err != nil {
		return replayOptions{}, err
	}
	opts := replayOptions{
		station:  replayStation,
		framing:  replayFraming,
		tables:   tables,
		rules:    rules,
		checksum: !noChecksum,
	}
	if replayAt != "" {
		if opts.at, err = time.Parse(time.RFC3339, replayAt); err != nil {
			return replayOptions{}, fmt.Errorf("parse --at: %w", err)
		}
	}
	return opts, nil
}

// printSink writes every observation as a JSON line.
type printSink struct {
	enc   *json.Encoder
	count int
}

func (s *printSink) Submit(_ context.Context, obs domain.Observation) error {
	s.count++
	return s.enc.Encode(obs.Record())
}

func runReplay(ctx context.Context, in io.Reader, out io.Writer, logger *slog.Logger, opts replayOptions) error {
	if !opts.at.IsZero() {
		domain.SetClock(clockwork.NewFakeClockAt(opts.at))
		defer domain.SetClock(nil)
	}

	sink := &printSink{enc: json.NewEncoder(out)}
	codec := pipeline.NewCodec(opts.framing, 0, opts.checksum, opts.tables, opts.rules)
	session := pipeline.NewSession(opts.station, codec, sink, logger, observability.NewUnregisteredMetrics())
	defer session.Close()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		chunk, err := parseHex(text)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := session.Feed(ctx, chunk); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	logger.Info("replay complete", "lines", line, "observations", sink.count)
	return nil
}
