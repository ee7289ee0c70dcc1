package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// DeviceID identifies the class of sensor unit that produced a frame and
// therefore which channel table applies.
type DeviceID uint8

// Device classes found on a road weather station.
const (
	DeviceMeteorological DeviceID = 7
	DeviceRoadSurface    DeviceID = 9
)

// Synthetic error codes. Devices report codes in 0..255, so negative values
// never collide with a sensor fault.
const (
	// CodeMalformed marks a record whose payload is shorter than its data type.
	CodeMalformed = -1
	// CodeNonFinite marks a floating point payload that decoded to NaN or Inf.
	CodeNonFinite = -2
)

// Kind discriminates the variants of Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindFloat
	KindCode
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindCode:
		return "code"
	case KindError:
		return "error"
	default:
		return "invalid"
	}
}

// Value is a single channel reading: a measurement, an enumerated code, or an
// error marker. The zero Value is KindInvalid.
type Value struct {
	kind Kind
	num  float64
	code int
}

// FloatValue returns a measurement value.
func FloatValue(f float64) Value { return Value{kind: KindFloat, num: f} }

// CodeValue returns an enumerated (coded) value.
func CodeValue(c int) Value { return Value{kind: KindCode, code: c} }

// ErrorValue returns an error marker carrying the device error code.
func ErrorValue(c int) Value { return Value{kind: KindError, code: c} }

func (v Value) Kind() Kind { return v.kind }

// Float returns the measurement and true when v is KindFloat.
func (v Value) Float() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.num, true
}

// Code returns the enumerated value and true when v is KindCode.
func (v Value) Code() (int, bool) {
	if v.kind != KindCode {
		return 0, false
	}
	return v.code, true
}

// ErrorCode returns the error code and true when v is an error marker.
func (v Value) ErrorCode() (int, bool) {
	if v.kind != KindError {
		return 0, false
	}
	return v.code, true
}

// IsError reports whether v is an error marker.
func (v Value) IsError() bool { return v.kind == KindError }

func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		return fmt.Sprintf("%g", v.num)
	case KindCode:
		return fmt.Sprintf("code(%d)", v.code)
	case KindError:
		return fmt.Sprintf("error(%d)", v.code)
	default:
		return "invalid"
	}
}

// DecodedField is one channel record after name mapping.
type DecodedField struct {
	Channel uint16
	Name    string
	Value   Value
	// Mapped is false when the channel has no entry in the device table and
	// Name was synthesized.
	Mapped bool
}

// Observation is the merged result of a complementary device pair. It is
// built once by Pairing.Next and must be treated as read-only afterwards.
type Observation struct {
	StationID  string
	CapturedAt time.Time
	Devices    []DeviceID
	Fields     map[string]Value
}

// FieldNames returns the observation's field names in sorted order.
func (o Observation) FieldNames() []string {
	names := make([]string, 0, len(o.Fields))
	for name := range o.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ObservationRecord is the serialized form of an Observation, shared by every
// sink encoding (JSON and CBOR).
type ObservationRecord struct {
	StationID  string                 `json:"station_id" cbor:"station_id"`
	CapturedAt time.Time              `json:"captured_at" cbor:"captured_at"`
	Devices    []int                  `json:"devices" cbor:"devices"`
	Fields     map[string]FieldRecord `json:"fields" cbor:"fields"`
}

// FieldRecord carries exactly one of Value, Code or Error.
type FieldRecord struct {
	Value *float64 `json:"value,omitempty" cbor:"value,omitempty"`
	Code  *int     `json:"code,omitempty" cbor:"code,omitempty"`
	Error *int     `json:"error,omitempty" cbor:"error,omitempty"`
}

// Record converts the observation to its serialized form.
func (o Observation) Record() ObservationRecord {
	// Integers, not bytes: a byte slice would marshal as a base64 string.
	devices := make([]int, len(o.Devices))
	for i, d := range o.Devices {
		devices[i] = int(d)
	}
	fields := make(map[string]FieldRecord, len(o.Fields))
	for name, v := range o.Fields {
		fields[name] = fieldRecord(v)
	}
	return ObservationRecord{
		StationID:  o.StationID,
		CapturedAt: o.CapturedAt.UTC(),
		Devices:    devices,
		Fields:     fields,
	}
}

func fieldRecord(v Value) FieldRecord {
	switch v.kind {
	case KindFloat:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			c := CodeNonFinite
			return FieldRecord{Error: &c}
		}
		f := v.num
		return FieldRecord{Value: &f}
	case KindCode:
		c := v.code
		return FieldRecord{Code: &c}
	default:
		c := v.code
		return FieldRecord{Error: &c}
	}
}

// Observation converts a serialized record back into an Observation.
func (r ObservationRecord) Observation() Observation {
	devices := make([]DeviceID, len(r.Devices))
	for i, d := range r.Devices {
		devices[i] = DeviceID(d)
	}
	fields := make(map[string]Value, len(r.Fields))
	for name, f := range r.Fields {
		switch {
		case f.Value != nil:
			fields[name] = FloatValue(*f.Value)
		case f.Code != nil:
			fields[name] = CodeValue(*f.Code)
		case f.Error != nil:
			fields[name] = ErrorValue(*f.Error)
		}
	}
	return Observation{
		StationID:  r.StationID,
		CapturedAt: r.CapturedAt,
		Devices:    devices,
		Fields:     fields,
	}
}
