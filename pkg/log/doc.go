// Package log captures cart lifecycle events for offline analysis.
//
// Events are recorded at the protocol boundary: state transitions of the
// provisioning machine, every publish and receive during a shopping
// session, and errors on any path. The FileLogger writes a compact CBOR
// stream (integer map keys, nanosecond timestamps) suitable for replaying
// a cart's behavior after a field incident; MemoryLogger collects events
// for tests, SlogAdapter mirrors them to console output.
//
// Logging is always optional: components accept a nil Logger and every
// implementation is safe for concurrent use.
package log
