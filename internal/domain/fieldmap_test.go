package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemapCode_RoadConditionTable(t *testing.T) {
	m := NewFieldMapper(DefaultTables())
	want := map[int]int{
		10: RoadDry,
		15: RoadWet,
		20: RoadWet,
		25: RoadWet,
		30: RoadWet,
		35: RoadIceSnow,
		40: RoadIceSnow,
		45: RoadFrost,
	}
	for raw, canonical := range want {
		got, ok := m.RemapCode(DeviceRoadSurface, 900, raw)
		assert.True(t, ok, "raw %d", raw)
		assert.Equal(t, canonical, got, "raw %d", raw)
	}
}

func TestRemapCode_PassThrough(t *testing.T) {
	m := NewFieldMapper(DefaultTables())

	got, ok := m.RemapCode(DeviceRoadSurface, 900, 99)
	assert.False(t, ok)
	assert.Equal(t, 99, got)

	got, ok = m.RemapCode(DeviceRoadSurface, 820, 20)
	assert.False(t, ok, "only road condition channels remap")
	assert.Equal(t, 20, got)

	got, ok = m.RemapCode(DeviceMeteorological, 900, 20)
	assert.False(t, ok)
	assert.Equal(t, 20, got)
}

func TestFieldName(t *testing.T) {
	m := NewFieldMapper(DefaultTables())

	tests := []struct {
		dev    DeviceID
		ch     uint16
		want   string
		mapped bool
	}{
		{DeviceMeteorological, 100, "air_temperature", true},
		{DeviceMeteorological, 625, "relative_precipitation", true},
		{DeviceMeteorological, 820, "rainfall_intensity", true},
		{DeviceRoadSurface, 820, "friction", true},
		{DeviceRoadSurface, 801, "saline_concentration", true},
		{DeviceRoadSurface, 900, "road_condition", true},
		{DeviceRoadSurface, 100, "unknown_channel_100", false},
		{DeviceID(3), 100, "unknown_channel_100", false},
	}
	for _, tt := range tests {
		name, mapped := m.FieldName(tt.dev, tt.ch)
		assert.Equal(t, tt.want, name)
		assert.Equal(t, tt.mapped, mapped, tt.want)
	}
}

func TestNewFieldMapper_CopiesTables(t *testing.T) {
	tables := DefaultTables()
	m := NewFieldMapper(tables)
	tables.Channels[DeviceMeteorological][100] = "changed"
	tables.RoadConditionCodes[10] = 0

	name, _ := m.FieldName(DeviceMeteorological, 100)
	assert.Equal(t, "air_temperature", name)
	code, _ := m.RemapCode(DeviceRoadSurface, 900, 10)
	assert.Equal(t, RoadDry, code)
}

func TestFieldMapper_Devices(t *testing.T) {
	m := NewFieldMapper(DefaultTables())
	assert.ElementsMatch(t, []DeviceID{DeviceMeteorological, DeviceRoadSurface}, m.Devices())
	assert.True(t, m.IsRoadCondition(DeviceRoadSurface, 900))
	assert.False(t, m.IsRoadCondition(DeviceMeteorological, 900))
}
