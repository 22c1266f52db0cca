//go:build !debug

// Package debug provides precondition traps that can be enabled with the debug
// build tag or will otherwise compile to no-ops, and the component loggers
// used throughout the firmware.
//
// Traps mark defects in the calling code, never runtime hardware conditions.
// Those are reported through error codes instead.
package debug

// Guard more complex assertions (i.e. anything that could panic) with `if
// debug.Enabled{...}`, otherwise they can't be removed in release builds.
const Enabled = false

// Assert panics if b is false.
func Assert(b bool, message string) {}

// AssertErrNil panics if err is not nil.
func AssertErrNil(err error) {}

// Unreachable panics unconditionally.
func Unreachable(message string) {}
