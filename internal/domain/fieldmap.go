package domain

import "fmt"

// Canonical road condition codes, as consumed by the road forecast model.
const (
	RoadDry     = 33
	RoadWet     = 34
	RoadIceSnow = 35
	RoadFrost   = 40
)

// ChannelTable maps a channel index to its canonical field name.
type ChannelTable map[uint16]string

// ChannelKey addresses one channel of one device class.
type ChannelKey struct {
	Device  DeviceID
	Channel uint16
}

// Tables is the static configuration behind a FieldMapper.
type Tables struct {
	Channels map[DeviceID]ChannelTable
	// RoadConditionChannels lists the coded channels whose raw device code is
	// remapped through RoadConditionCodes.
	RoadConditionChannels []ChannelKey
	RoadConditionCodes    map[int]int
}

// DefaultTables returns the channel tables of the meteorological and
// road-surface sensor classes.
func DefaultTables() Tables {
	return Tables{
		Channels: map[DeviceID]ChannelTable{
			DeviceMeteorological: {
				100: "air_temperature",
				110: "dewpoint_temperature",
				200: "humidity",
				300: "atmospheric_pressure",
				401: "wind_speed",
				501: "wind_direction",
				620: "absolute_precipitation",
				625: "relative_precipitation",
				820: "rainfall_intensity",
			},
			DeviceRoadSurface: {
				101: "road_surface_temperature",
				151: "freezing_point",
				601: "water_film_height",
				801: "saline_concentration",
				810: "ice_percentage",
				820: "friction",
				900: "road_condition",
			},
		},
		RoadConditionChannels: []ChannelKey{{Device: DeviceRoadSurface, Channel: 900}},
		RoadConditionCodes: map[int]int{
			10: RoadDry,
			15: RoadWet, // damp
			20: RoadWet,
			25: RoadWet, // damp, salted
			30: RoadWet, // wet, salted
			35: RoadIceSnow,
			40: RoadIceSnow, // snow
			45: RoadFrost,
		},
	}
}

// FieldMapper resolves (device, channel) pairs to field names and remaps
// road condition codes. It is immutable and safe for concurrent use.
type FieldMapper struct {
	channels map[DeviceID]ChannelTable
	road     map[ChannelKey]struct{}
	codes    map[int]int
}

// NewFieldMapper copies t into a new FieldMapper.
func NewFieldMapper(t Tables) *FieldMapper {
	m := &FieldMapper{
		channels: make(map[DeviceID]ChannelTable, len(t.Channels)),
		road:     make(map[ChannelKey]struct{}, len(t.RoadConditionChannels)),
		codes:    make(map[int]int, len(t.RoadConditionCodes)),
	}
	for dev, table := range t.Channels {
		cp := make(ChannelTable, len(table))
		for ch, name := range table {
			cp[ch] = name
		}
		m.channels[dev] = cp
	}
	for _, k := range t.RoadConditionChannels {
		m.road[k] = struct{}{}
	}
	for raw, canonical := range t.RoadConditionCodes {
		m.codes[raw] = canonical
	}
	return m
}

// FieldName returns the mapped name for the channel. For unmapped channels it
// returns a synthesized name and false.
func (m *FieldMapper) FieldName(dev DeviceID, ch uint16) (string, bool) {
	if name, ok := m.channels[dev][ch]; ok {
		return name, true
	}
	return UnknownFieldName(ch), false
}

// IsRoadCondition reports whether the channel carries a remapped road
// condition code.
func (m *FieldMapper) IsRoadCondition(dev DeviceID, ch uint16) bool {
	_, ok := m.road[ChannelKey{Device: dev, Channel: ch}]
	return ok
}

// RemapCode translates a raw coded value. Codes on channels other than road
// condition channels, and road condition codes missing from the table, are
// returned unchanged with false.
func (m *FieldMapper) RemapCode(dev DeviceID, ch uint16, raw int) (int, bool) {
	if !m.IsRoadCondition(dev, ch) {
		return raw, false
	}
	canonical, ok := m.codes[raw]
	if !ok {
		return raw, false
	}
	return canonical, true
}

// Devices returns the device classes with a channel table.
func (m *FieldMapper) Devices() []DeviceID {
	out := make([]DeviceID, 0, len(m.channels))
	for dev := range m.channels {
		out = append(out, dev)
	}
	return out
}

// UnknownFieldName is the name given to channels missing from the device table.
func UnknownFieldName(ch uint16) string {
	return fmt.Sprintf("unknown_channel_%d", ch)
}
