// Package umb implements the binary frame protocol spoken by road weather
// sensor units.
//
// # Frame Layout
//
//	offset  size  field
//	0       1     SOH (0x01)
//	1       1     protocol version
//	2       2     destination address, little-endian
//	4       2     source address, little-endian; the upper nibble of byte 5
//	              is the device class (0x70 -> device 7)
//	6       1     length: bytes between STX and ETX
//	7       1     STX (0x02)
//	8       1     command
//	9       1     command version
//	10      1     status
//	11      1     channel count
//	12      ...   channel records
//	n-4     1     ETX (0x03)
//	n-3     2     CRC-16, little-endian, over bytes 0..n-4
//	n-1     1     EOT (0x04)
//
// # Channel Records
//
//	[len][error][channel lo][channel hi][type][payload...]
//
// len counts every byte after itself. type and payload are present only when
// error is 0x00. Integer types (0x10..0x15) decode to codes, 0x16 and 0x17 to
// measurements rounded to two decimals.
//
// # Stages
//
// An [Assembler] recovers frames from a byte stream, a [Validator] checks the
// CRC (or does nothing when the deployment sends none), and a [Decoder] turns
// records into named fields. Assemblers hold per-connection state; validators
// and decoders are safe to share.
package umb
