package umb

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/couchcryptid/road-weather-ingest/internal/domain"
)

// Defaults used when building frames.
const (
	DefaultVersion        = 0x10
	DefaultMaster         = 0xF001
	CommandOnlineMulti    = 0x2F
	DefaultCommandVersion = 0x10
)

// Record is one channel record to encode.
type Record struct {
	Channel   uint16
	ErrorCode byte
	Type      DataType
	Payload   []byte
}

// FloatRecord is a valid float measurement.
func FloatRecord(ch uint16, v float32) Record {
	p := make([]byte, 4)
	binary.LittleEndian.PutUint32(p, math.Float32bits(v))
	return Record{Channel: ch, Type: TypeFloat, Payload: p}
}

// DoubleRecord is a valid double precision measurement.
func DoubleRecord(ch uint16, v float64) Record {
	p := make([]byte, 8)
	binary.LittleEndian.PutUint64(p, math.Float64bits(v))
	return Record{Channel: ch, Type: TypeDouble, Payload: p}
}

// CodeRecord is a valid single-byte coded reading.
func CodeRecord(ch uint16, code byte) Record {
	return Record{Channel: ch, Type: TypeUChar, Payload: []byte{code}}
}

// ErrorRecord is a record reporting a device error; it carries no payload.
func ErrorRecord(ch uint16, code byte) Record {
	return Record{Channel: ch, ErrorCode: code}
}

// Len is the record's declared length byte.
func (r Record) Len() int {
	if r.ErrorCode != StatusOK {
		return recordPrefix
	}
	return recordPrefix + 1 + len(r.Payload)
}

func (r Record) appendTo(b []byte) []byte {
	b = append(b, byte(r.Len()), r.ErrorCode)
	b = binary.LittleEndian.AppendUint16(b, r.Channel)
	if r.ErrorCode != StatusOK {
		return b
	}
	b = append(b, byte(r.Type))
	return append(b, r.Payload...)
}

// FrameSpec describes the header of a frame to encode.
type FrameSpec struct {
	Device domain.DeviceID
	// Unit is the low byte of the source address, distinguishing units of the
	// same class.
	Unit           byte
	To             uint16
	Version        byte
	CommandVersion byte
	Status         byte
}

// Address returns the source address: device class in the high nibble, unit below.
func (s FrameSpec) Address() uint16 {
	return uint16(s.Device)<<12 | uint16(s.Unit)
}

// EncodeFrame builds a complete checksummed frame.
func EncodeFrame(spec FrameSpec, records []Record) (Frame, error) {
	if len(records) > 0xFF {
		return nil, fmt.Errorf("%w: %d channels", ErrFrameTooLong, len(records))
	}
	version := spec.Version
	if version == 0 {
		version = DefaultVersion
	}
	to := spec.To
	if to == 0 {
		to = DefaultMaster
	}
	verc := spec.CommandVersion
	if verc == 0 {
		verc = DefaultCommandVersion
	}

	var body []byte
	for _, r := range records {
		if r.Len() > 0xFF {
			return nil, fmt.Errorf("%w: channel %d record is %d bytes", ErrFrameTooLong, r.Channel, r.Len())
		}
		body = r.appendTo(body)
	}
	length := 4 + len(body) // command, command version, status, channel count
	if length > 0xFF {
		return nil, fmt.Errorf("%w: %d bytes between STX and ETX", ErrFrameTooLong, length)
	}

	f := make(Frame, 0, envelopeLen+length+TrailerLen)
	f = append(f, SOH, version)
	f = binary.LittleEndian.AppendUint16(f, to)
	f = binary.LittleEndian.AppendUint16(f, spec.Address())
	f = append(f, byte(length), STX, CommandOnlineMulti, verc, spec.Status, byte(len(records)))
	f = append(f, body...)
	f = append(f, ETX)
	f = binary.LittleEndian.AppendUint16(f, Checksum(f))
	return append(f, EOT), nil
}
