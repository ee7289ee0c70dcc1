package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/couchcryptid/road-weather-ingest/internal/domain"
	"gopkg.in/yaml.v3"
)

// TableFile is the YAML layout of CHANNEL_TABLE_PATH:
//
//	devices:
//	  9:
//	    830: surface_state
//	road_condition:
//	  channels:
//	    - {device: 9, channel: 900}
//	  codes:
//	    50: 34
type TableFile struct {
	Devices       map[uint8]map[uint16]string `yaml:"devices"`
	RoadCondition *RoadConditionFile          `yaml:"road_condition,omitempty"`
}

// RoadConditionFile overrides the road condition remapping.
type RoadConditionFile struct {
	Channels []ChannelRef `yaml:"channels,omitempty"`
	Codes    map[int]int  `yaml:"codes,omitempty"`
}

// ChannelRef names one channel of one device class.
type ChannelRef struct {
	Device  uint8  `yaml:"device"`
	Channel uint16 `yaml:"channel"`
}

// LoadChannelTables returns the built-in tables, overlaid with the file at
// path when path is not empty. Device entries and codes in the file are
// merged over the defaults; a non-empty channel list replaces the default
// road condition channels.
func LoadChannelTables(path string) (domain.Tables, error) {
	tables := domain.DefaultTables()
	if path == "" {
		return tables, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Tables{}, fmt.Errorf("read channel tables: %w", err)
	}

	var file TableFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return domain.Tables{}, fmt.Errorf("parse channel tables %s: %w", path, err)
	}
	if err := file.apply(&tables); err != nil {
		return domain.Tables{}, fmt.Errorf("channel tables %s: %w", path, err)
	}
	return tables, nil
}

func (f TableFile) apply(t *domain.Tables) error {
	for dev, channels := range f.Devices {
		if dev > 0x0F {
			return fmt.Errorf("device %d must be 0..15", dev)
		}
		id := domain.DeviceID(dev)
		if t.Channels[id] == nil {
			t.Channels[id] = domain.ChannelTable{}
		}
		for ch, name := range channels {
			if name == "" {
				return fmt.Errorf("device %d channel %d: empty field name", dev, ch)
			}
			t.Channels[id][ch] = name
		}
	}

	if f.RoadCondition == nil {
		return nil
	}
	if len(f.RoadCondition.Channels) > 0 {
		t.RoadConditionChannels = t.RoadConditionChannels[:0]
		for _, c := range f.RoadCondition.Channels {
			t.RoadConditionChannels = append(t.RoadConditionChannels, domain.ChannelKey{
				Device:  domain.DeviceID(c.Device),
				Channel: c.Channel,
			})
		}
	}
	for raw, canonical := range f.RoadCondition.Codes {
		t.RoadConditionCodes[raw] = canonical
	}
	return nil
}
