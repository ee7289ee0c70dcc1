package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/road-weather-ingest/internal/config"
	"github.com/couchcryptid/road-weather-ingest/internal/domain"
	"github.com/couchcryptid/road-weather-ingest/internal/umb"
)

// Options shared by decode and replay.
var (
	noChecksum bool
	tablesPath string
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode one UMB frame into named fields",
	Long: `Decode parses a single hex-encoded UMB frame, verifies its checksum and
prints the header and the named channel values as JSON.`,
	Example: `  umbtool decode 011001F0019029022F1000050800650016000060400800970016000010C008005902160000003E03282A0305008403101403D3B704`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, err := config.LoadChannelTables(tablesPath)
		if err != nil {
			return err
		}
		return runDecode(cmd.OutOrStdout(), args[0], tables, !noChecksum)
	},
}

func init() {
	for _, c := range []*cobra.Command{decodeCmd, replayCmd} {
		c.Flags().BoolVar(&noChecksum, "no-checksum", false, "skip CRC verification")
		c.Flags().StringVar(&tablesPath, "tables", "", "YAML channel table overrides")
	}
}

// decodedFrame is the JSON shape printed by decode.
type decodedFrame struct {
	Device   uint8                         `json:"device"`
	From     string                        `json:"from"`
	To       string                        `json:"to"`
	Status   uint8                         `json:"status"`
	Channels int                           `json:"channels"`
	Fields   map[string]domain.FieldRecord `json:"fields"`
}

func runDecode(w io.Writer, hexFrame string, tables domain.Tables, checksum bool) error {
	raw, err := parseHex(hexFrame)
	if err != nil {
		return err
	}
	f := umb.Frame(raw)
	if err := umb.NewValidator(checksum).Validate(f); err != nil {
		return err
	}
	decoded, err := umb.NewDecoder(domain.NewFieldMapper(tables)).Decode(f)
	if err != nil {
		return err
	}

	fields := make(map[string]domain.Value, len(decoded.Fields))
	for _, fld := range decoded.Fields {
		fields[fld.Name] = fld.Value
	}
	h := decoded.Header
	out := decodedFrame{
		Device:   uint8(h.Device),
		From:     fmt.Sprintf("%04X", h.From),
		To:       fmt.Sprintf("%04X", h.To),
		Status:   h.Status,
		Channels: h.ChannelCount,
		Fields:   domain.Observation{Fields: fields}.Record().Fields,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// parseHex accepts hex with optional whitespace, colons or a 0x prefix.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.NewReplacer(" ", "", "\t", "", ":", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("parse hex: %w", err)
	}
	return b, nil
}
