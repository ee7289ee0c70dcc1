package umb_test

import (
	"encoding/binary"
	"math"
	"math/rand"
	"testing"

	"github.com/couchcryptid/road-weather-ingest/internal/domain"
	"github.com/couchcryptid/road-weather-ingest/internal/umb"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDecoder() *umb.Decoder {
	return umb.NewDecoder(domain.NewFieldMapper(domain.DefaultTables()))
}

func fieldValues(fields []domain.DecodedField) map[string]domain.Value {
	out := make(map[string]domain.Value, len(fields))
	for _, f := range fields {
		out[f.Name] = f.Value
	}
	return out
}

func TestDecoder_MeteorologicalFrame(t *testing.T) {
	got, err := newDecoder().Decode(metFrame(t))
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceMeteorological, got.Header.Device)
	require.Len(t, got.Fields, 9)

	want := map[string]float64{
		"air_temperature":        27.59,
		"dewpoint_temperature":   19.83,
		"humidity":               62.72,
		"atmospheric_pressure":   1006.11,
		"wind_speed":             5.09,
		"wind_direction":         193.27,
		"absolute_precipitation": 0,
		"relative_precipitation": 0,
		"rainfall_intensity":     0,
	}
	values := fieldValues(got.Fields)
	for name, w := range want {
		f, ok := values[name].Float()
		require.True(t, ok, name)
		assert.InDelta(t, w, f, 1e-9, name)
	}
	for _, f := range got.Fields {
		assert.True(t, f.Mapped, f.Name)
	}
}

func TestDecoder_RoadSurfaceFrame(t *testing.T) {
	got, err := newDecoder().Decode(roadFrame(t))
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceRoadSurface, got.Header.Device)

	want := []domain.DecodedField{
		{Channel: 101, Name: "road_surface_temperature", Value: domain.FloatValue(3.5), Mapped: true},
		{Channel: 151, Name: "freezing_point", Value: domain.FloatValue(-2.25), Mapped: true},
		{Channel: 601, Name: "water_film_height", Value: domain.FloatValue(0.12), Mapped: true},
		{Channel: 810, Name: "ice_percentage", Value: domain.ErrorValue(0x28), Mapped: true},
		{Channel: 900, Name: "road_condition", Value: domain.CodeValue(domain.RoadWet), Mapped: true},
	}
	if diff := cmp.Diff(want, got.Fields, cmp.AllowUnexported(domain.Value{})); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoder_DeviceErrorDoesNotAbortFrame(t *testing.T) {
	f, err := umb.EncodeFrame(umb.FrameSpec{Device: domain.DeviceMeteorological}, []umb.Record{
		umb.ErrorRecord(100, 0x15),
		umb.FloatRecord(200, 55.5),
	})
	require.NoError(t, err)

	got, err := newDecoder().Decode(f)
	require.NoError(t, err)
	require.Len(t, got.Fields, 2)
	code, ok := got.Fields[0].Value.ErrorCode()
	require.True(t, ok)
	assert.Equal(t, 0x15, code)
	assert.Equal(t, domain.FloatValue(55.5), got.Fields[1].Value)
}

func TestDecoder_UnmappedChannel(t *testing.T) {
	f, err := umb.EncodeFrame(umb.FrameSpec{Device: domain.DeviceMeteorological}, []umb.Record{
		umb.FloatRecord(4242, 1.25),
	})
	require.NoError(t, err)

	got, err := newDecoder().Decode(f)
	require.NoError(t, err)
	require.Len(t, got.Fields, 1)
	assert.Equal(t, "unknown_channel_4242", got.Fields[0].Name)
	assert.False(t, got.Fields[0].Mapped)
	assert.Equal(t, domain.FloatValue(1.25), got.Fields[0].Value)
}

func TestDecoder_ValueTypes(t *testing.T) {
	le16 := func(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }
	le32 := func(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }

	tests := []struct {
		name   string
		device domain.DeviceID
		record umb.Record
		want   domain.Value
	}{
		{"uchar", domain.DeviceMeteorological, umb.CodeRecord(900, 200), domain.CodeValue(200)},
		{"schar", domain.DeviceMeteorological, umb.Record{Channel: 1, Type: umb.TypeSChar, Payload: []byte{0xFE}}, domain.CodeValue(-2)},
		{"ushort", domain.DeviceMeteorological, umb.Record{Channel: 1, Type: umb.TypeUShort, Payload: le16(0x1234)}, domain.CodeValue(0x1234)},
		{"sshort", domain.DeviceMeteorological, umb.Record{Channel: 1, Type: umb.TypeSShort, Payload: le16(0xFFFE)}, domain.CodeValue(-2)},
		{"ulong", domain.DeviceMeteorological, umb.Record{Channel: 1, Type: umb.TypeULong, Payload: le32(70000)}, domain.CodeValue(70000)},
		{"slong", domain.DeviceMeteorological, umb.Record{Channel: 1, Type: umb.TypeSLong, Payload: le32(0xFFFFFFFF)}, domain.CodeValue(-1)},
		{"double", domain.DeviceMeteorological, umb.DoubleRecord(300, 1006.114), domain.FloatValue(1006.11)},
		{"unknown tag reads as float", domain.DeviceMeteorological, umb.Record{Channel: 1, Type: 0x20, Payload: le32(math.Float32bits(2.5))}, domain.FloatValue(2.5)},
		{"road condition remapped", domain.DeviceRoadSurface, umb.CodeRecord(900, 45), domain.CodeValue(domain.RoadFrost)},
		{"road condition wider type remapped", domain.DeviceRoadSurface, umb.Record{Channel: 900, Type: umb.TypeUShort, Payload: le16(10)}, domain.CodeValue(domain.RoadDry)},
		{"unknown road code passes through", domain.DeviceRoadSurface, umb.CodeRecord(900, 99), domain.CodeValue(99)},
		{"code on other channel not remapped", domain.DeviceRoadSurface, umb.CodeRecord(820, 20), domain.CodeValue(20)},
		{"short payload", domain.DeviceMeteorological, umb.Record{Channel: 1, Type: umb.TypeFloat, Payload: []byte{1, 2}}, domain.ErrorValue(domain.CodeMalformed)},
		{"short double", domain.DeviceMeteorological, umb.Record{Channel: 1, Type: umb.TypeDouble, Payload: le32(1)}, domain.ErrorValue(domain.CodeMalformed)},
		{"nan", domain.DeviceMeteorological, umb.FloatRecord(100, float32(math.NaN())), domain.ErrorValue(domain.CodeNonFinite)},
		{"inf", domain.DeviceMeteorological, umb.DoubleRecord(100, math.Inf(-1)), domain.ErrorValue(domain.CodeNonFinite)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := umb.EncodeFrame(umb.FrameSpec{Device: tt.device}, []umb.Record{tt.record})
			require.NoError(t, err)
			got, err := newDecoder().Decode(f)
			require.NoError(t, err)
			require.Len(t, got.Fields, 1)
			assert.Equal(t, tt.want, got.Fields[0].Value)
		})
	}
}

func TestDecodeRecords_MissingTypeByte(t *testing.T) {
	body := []byte{0x03, 0x00, 0x64, 0x00}
	fields, err := newDecoder().DecodeRecords(body, domain.DeviceMeteorological, 1)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, domain.ErrorValue(domain.CodeMalformed), fields[0].Value)
}

func TestDecodeRecords_StructuralErrors(t *testing.T) {
	record := []byte{0x05, 0x00, 0x84, 0x03, 0x10, 0x14}

	tests := []struct {
		name  string
		body  []byte
		count int
		want  error
	}{
		{"fewer records than declared", record, 2, umb.ErrChannelCount},
		{"bytes left after declared records", append(append([]byte{}, record...), record...), 1, umb.ErrChannelCount},
		{"record overruns body", []byte{0x09, 0x00, 0x84, 0x03, 0x10, 0x14}, 1, umb.ErrRecordOverrun},
		{"record shorter than prefix", []byte{0x02, 0x00, 0x84}, 1, umb.ErrRecordTooShort},
		{"empty body", nil, 1, umb.ErrChannelCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newDecoder().DecodeRecords(tt.body, domain.DeviceRoadSurface, tt.count)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeRecords_ZeroChannels(t *testing.T) {
	fields, err := newDecoder().DecodeRecords(nil, domain.DeviceRoadSurface, 0)
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestDecoder_ShortFrame(t *testing.T) {
	_, err := newDecoder().Decode(umb.Frame{0x01, 0x04})
	assert.ErrorIs(t, err, umb.ErrShortFrame)
}

func TestDecodeFloat32_MatchesLittleEndian(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for range 1000 {
		bits := rng.Uint32()
		b := binary.LittleEndian.AppendUint32(nil, bits)
		assert.Equal(t, bits, math.Float32bits(umb.DecodeFloat32(b)))
	}
}

func TestRound2(t *testing.T) {
	assert.InDelta(t, 0.12, umb.Round2(0.125), 1e-12)
	assert.InDelta(t, 0.62, umb.Round2(0.625), 1e-12)
	assert.InDelta(t, 2.12, umb.Round2(2.125), 1e-12)
	assert.InDelta(t, 0.38, umb.Round2(0.375), 1e-12)
	assert.InDelta(t, -0.12, umb.Round2(-0.125), 1e-12)
	assert.InDelta(t, 2.67, umb.Round2(2.675), 1e-12, "2.675 is stored just below the tie")
	assert.InDelta(t, -2.25, umb.Round2(-2.25), 1e-12)
	assert.InDelta(t, 27.59, umb.Round2(27.5857), 1e-12)
}
