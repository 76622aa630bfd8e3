// Package log wraps zerolog with mailestd's global logger: Init sets
// the level/format/output once at startup, WithComponent/WithTaskID/
// WithGatherID/WithFolder attach context fields per caller, and
// SetLevel adjusts the running level for mailestctl's debug-up/
// debug-down commands.
package log
