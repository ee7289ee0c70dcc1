// Package pipeline connects station byte streams to the observation sinks.
//
// Each connection owns a [Session] that assembles, validates and decodes
// frames and pairs complementary devices. Merged observations go to a shared
// [Queue]; the [Pipeline] loop drains the queue in batches and hands them to
// a [BatchLoader], usually a [FanOut] over the configured sinks.
//
// A full queue blocks Session.Feed, which stops the connection reading and
// pushes back on the station over TCP.
package pipeline
