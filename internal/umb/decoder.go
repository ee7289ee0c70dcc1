package umb

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/couchcryptid/road-weather-ingest/internal/domain"
)

// DataType is the type tag of a channel record payload.
type DataType byte

const (
	TypeUChar  DataType = 0x10
	TypeSChar  DataType = 0x11
	TypeUShort DataType = 0x12
	TypeSShort DataType = 0x13
	TypeULong  DataType = 0x14
	TypeSLong  DataType = 0x15
	TypeFloat  DataType = 0x16
	TypeDouble DataType = 0x17
)

// Size returns the payload size of the type. Unknown tags are read as float.
func (t DataType) Size() int {
	switch t {
	case TypeUChar, TypeSChar:
		return 1
	case TypeUShort, TypeSShort:
		return 2
	case TypeDouble:
		return 8
	default:
		return 4
	}
}

// recordPrefix is error code plus channel index, present in every record.
const recordPrefix = 3

// DecodedFrame is a frame's header with its decoded channels in wire order.
type DecodedFrame struct {
	Header Header
	Fields []domain.DecodedField
}

// Decoder turns frames into named fields. It is stateless and safe for
// concurrent use.
type Decoder struct {
	mapper *domain.FieldMapper
}

// NewDecoder returns a Decoder that names channels with mapper.
func NewDecoder(mapper *domain.FieldMapper) *Decoder {
	return &Decoder{mapper: mapper}
}

func (d *Decoder) Mapper() *domain.FieldMapper { return d.mapper }

// Decode parses every channel record of f. A record carrying a device error or
// an unmapped channel still yields a field; only structural corruption fails
// the frame.
func (d *Decoder) Decode(f Frame) (DecodedFrame, error) {
	h, err := ParseHeader(f)
	if err != nil {
		return DecodedFrame{}, err
	}
	fields, err := d.DecodeRecords(f.Body(), h.Device, h.ChannelCount)
	if err != nil {
		return DecodedFrame{}, err
	}
	return DecodedFrame{Header: h, Fields: fields}, nil
}

// DecodeRecords parses count length-prefixed records from body. The cursor
// always advances by exactly the declared record length, and the records must
// consume body completely.
func (d *Decoder) DecodeRecords(body []byte, dev domain.DeviceID, count int) ([]domain.DecodedField, error) {
	fields := make([]domain.DecodedField, 0, count)
	cursor := 0
	for i := 0; i < count; i++ {
		if cursor >= len(body) {
			return nil, fmt.Errorf("%w: header declares %d, found %d", ErrChannelCount, count, i)
		}
		n := int(body[cursor])
		cursor++
		next := cursor + n
		if next > len(body) {
			return nil, fmt.Errorf("%w: record %d declares %d bytes, %d remain", ErrRecordOverrun, i, n, len(body)-cursor)
		}
		rec := body[cursor:next]
		cursor = next

		field, err := d.decodeRecord(dev, rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		fields = append(fields, field)
	}
	if cursor != len(body) {
		return nil, fmt.Errorf("%w: header declares %d, %d bytes left over", ErrChannelCount, count, len(body)-cursor)
	}
	return fields, nil
}

func (d *Decoder) decodeRecord(dev domain.DeviceID, rec []byte) (domain.DecodedField, error) {
	if len(rec) < recordPrefix {
		return domain.DecodedField{}, fmt.Errorf("%w: %d bytes", ErrRecordTooShort, len(rec))
	}
	code := rec[0]
	ch := binary.LittleEndian.Uint16(rec[1:3])
	name, mapped := d.mapper.FieldName(dev, ch)
	field := domain.DecodedField{Channel: ch, Name: name, Mapped: mapped}

	if code != StatusOK {
		field.Value = domain.ErrorValue(int(code))
		return field, nil
	}
	if len(rec) <= recordPrefix {
		field.Value = domain.ErrorValue(domain.CodeMalformed)
		return field, nil
	}
	field.Value = d.decodeValue(dev, ch, DataType(rec[recordPrefix]), rec[recordPrefix+1:])
	return field, nil
}

func (d *Decoder) decodeValue(dev domain.DeviceID, ch uint16, t DataType, payload []byte) domain.Value {
	if len(payload) < t.Size() {
		return domain.ErrorValue(domain.CodeMalformed)
	}
	switch t {
	case TypeUChar:
		return d.coded(dev, ch, int(payload[0]))
	case TypeSChar:
		return d.coded(dev, ch, int(int8(payload[0])))
	case TypeUShort:
		return d.coded(dev, ch, int(binary.LittleEndian.Uint16(payload)))
	case TypeSShort:
		return d.coded(dev, ch, int(int16(binary.LittleEndian.Uint16(payload))))
	case TypeULong:
		return d.coded(dev, ch, int(binary.LittleEndian.Uint32(payload)))
	case TypeSLong:
		return d.coded(dev, ch, int(int32(binary.LittleEndian.Uint32(payload))))
	case TypeDouble:
		return measurement(math.Float64frombits(binary.LittleEndian.Uint64(payload)))
	default:
		return measurement(float64(DecodeFloat32(payload)))
	}
}

func (d *Decoder) coded(dev domain.DeviceID, ch uint16, raw int) domain.Value {
	code, _ := d.mapper.RemapCode(dev, ch, raw)
	return domain.CodeValue(code)
}

func measurement(v float64) domain.Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return domain.ErrorValue(domain.CodeNonFinite)
	}
	return domain.FloatValue(Round2(v))
}

// DecodeFloat32 reads the first four bytes of b as a little-endian IEEE-754
// float by reversing them and parsing the result big-endian.
func DecodeFloat32(b []byte) float32 {
	rev := [4]byte{b[3], b[2], b[1], b[0]}
	return math.Float32frombits(binary.BigEndian.Uint32(rev[:]))
}

// Round2 rounds to two decimal places. The exact binary value is rounded, so
// ties such as 0.125 go to the even digit.
func Round2(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return r
}
