package umb

import (
	"encoding/binary"
	"fmt"

	"github.com/sigurn/crc16"
)

// crcTable is CRC-16/MCRF4XX: polynomial 0x8408 applied LSB first, initial
// register 0xFFFF, no final xor.
var crcTable = crc16.MakeTable(crc16.CRC16_MCRF4XX)

// Checksum computes the frame CRC over data.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// Validator accepts or rejects a frame before it is decoded.
type Validator interface {
	Validate(f Frame) error
}

// CRCValidator checks the two bytes preceding EOT against the CRC of every
// byte before them.
type CRCValidator struct{}

// NewCRCValidator returns a validator for frames carrying a checksum.
func NewCRCValidator() CRCValidator { return CRCValidator{} }

func (CRCValidator) Validate(f Frame) error {
	if len(f) < 4 {
		return fmt.Errorf("%w: %d bytes", ErrShortFrame, len(f))
	}
	n := len(f) - 3
	want := binary.LittleEndian.Uint16(f[n : n+2])
	if got := Checksum(f[:n]); got != want {
		return fmt.Errorf("%w: computed 0x%04X, frame carries 0x%04X", ErrChecksum, got, want)
	}
	return nil
}

// NopValidator accepts every frame, for device classes that send no checksum.
type NopValidator struct{}

func (NopValidator) Validate(Frame) error { return nil }

// NewValidator returns a CRCValidator when enabled, otherwise a NopValidator.
func NewValidator(enabled bool) Validator {
	if enabled {
		return CRCValidator{}
	}
	return NopValidator{}
}
