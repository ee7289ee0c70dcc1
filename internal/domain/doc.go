// Package domain models road weather station observations.
//
// # Device Classes
//
// A station carries two sensor units that report over the same connection:
//
//	device 7  meteorological unit: air temperature, dew point, humidity,
//	          pressure, wind, precipitation
//	device 9  road-surface unit: surface temperature, freezing point, water
//	          film, salinity, ice percentage, friction, road condition
//
// Each unit numbers its measurement slots ("channels") independently, so a
// channel index is only meaningful together with its device id. Channel 820
// is rainfall intensity on device 7 and friction on device 9.
//
// # Values
//
// Every decoded channel becomes a [Value]: a float measurement, an integer
// code (enumerated readings such as road condition), or an error marker that
// carries the device's error code. Synthetic codes [CodeMalformed] and
// [CodeNonFinite] are negative so they never collide with device codes.
//
// Road condition codes are remapped to the canonical codes of the road
// forecast model:
//
//	10           -> 33 dry
//	15 20 25 30  -> 34 damp / wet
//	35 40        -> 35 ice / snow
//	45           -> 40 frost
//
// # Pairing
//
// The two units report back to back. [Pairing.Next] holds the first unit's
// fields until its complementary partner arrives, then emits one
// [Observation] stamped with the pair completion time in UTC. A repeated or
// out-of-order device drops the stale half and restarts pairing; that is the
// normal steady state when a unit skips a cycle, not an error.
package domain
