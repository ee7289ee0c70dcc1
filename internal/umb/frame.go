package umb

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/couchcryptid/road-weather-ingest/internal/domain"
)

// Control characters delimiting a frame.
const (
	SOH = 0x01
	STX = 0x02
	ETX = 0x03
	EOT = 0x04
)

// Frame layout.
const (
	HeaderLen  = 12 // SOH through channel count
	TrailerLen = 4  // ETX, CRC low, CRC high, EOT
	// envelopeLen covers SOH..STX, the bytes not counted by the length byte.
	envelopeLen = 8
	lengthIndex = 6
	MinFrameLen = HeaderLen + TrailerLen
	// MaxFrameLen is the longest frame a one-byte length field can describe.
	MaxFrameLen = envelopeLen + 0xFF + TrailerLen
)

// StatusOK is the record error code for a valid reading.
const StatusOK = 0x00

var (
	ErrShortFrame     = errors.New("umb: frame too short")
	ErrBadMarkers     = errors.New("umb: frame markers missing")
	ErrChecksum       = errors.New("umb: checksum mismatch")
	ErrChannelCount   = errors.New("umb: channel count does not match records")
	ErrRecordOverrun  = errors.New("umb: record length overruns frame")
	ErrRecordTooShort = errors.New("umb: record too short")
	ErrFrameTooLong   = errors.New("umb: frame body exceeds length field")
)

// Frame is one delimited frame, SOH through EOT. A Frame handed out by an
// assembler is a private copy owned by the receiver.
type Frame []byte

// Header is the fixed 12-byte frame prefix.
type Header struct {
	Version        byte
	To             uint16
	From           uint16
	Length         byte // bytes between STX and ETX
	Command        byte
	CommandVersion byte
	Status         byte
	Device         domain.DeviceID
	ChannelCount   int
}

// ParseHeader reads the header of a complete frame.
func ParseHeader(f Frame) (Header, error) {
	if len(f) < MinFrameLen {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(f))
	}
	if f[0] != SOH || f[len(f)-1] != EOT {
		return Header{}, fmt.Errorf("%w: starts 0x%02X ends 0x%02X", ErrBadMarkers, f[0], f[len(f)-1])
	}
	return Header{
		Version:        f[1],
		To:             binary.LittleEndian.Uint16(f[2:4]),
		From:           binary.LittleEndian.Uint16(f[4:6]),
		Length:         f[lengthIndex],
		Command:        f[8],
		CommandVersion: f[9],
		Status:         f[10],
		Device:         DeviceOf(f[5]),
		ChannelCount:   int(f[11]),
	}, nil
}

// Header parses the frame header.
func (f Frame) Header() (Header, error) { return ParseHeader(f) }

// DeviceOf extracts the device class from the high byte of the source
// address: the class lives in its upper nibble (0x70 is device 7).
func DeviceOf(fromHigh byte) domain.DeviceID {
	return domain.DeviceID(fromHigh >> 4)
}

// Body returns the channel records between the header and the trailer.
func (f Frame) Body() []byte {
	if len(f) < MinFrameLen {
		return nil
	}
	return f[HeaderLen : len(f)-TrailerLen]
}

// frameLen is the total frame size implied by a header length byte.
func frameLen(length byte) int {
	return envelopeLen + int(length) + TrailerLen
}
