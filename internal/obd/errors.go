package obd

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the engine. All are recoverable at the caller's
// discretion; none leave a command pending behind.
var (
	// ErrNoCompatibleProfile means no known service/characteristic profile
	// matched the peripheral. The link itself may still be up; callers can
	// retry discovery but cannot issue commands.
	ErrNoCompatibleProfile = errors.New("obd: no compatible UUID profile")

	// ErrNotConnected means a command was attempted with no negotiated
	// device configuration.
	ErrNotConnected = errors.New("obd: not connected")

	// ErrCommandInProgress means a command was submitted while another was
	// still in flight. Commands are never queued; ELM327 interpreters do not
	// pipeline.
	ErrCommandInProgress = errors.New("obd: command already in progress")

	// ErrCommandTimeout means the prompt byte did not arrive within the
	// configured window. The connection itself remains open.
	ErrCommandTimeout = errors.New("obd: command timed out")

	// ErrDeviceDisconnected means the transport dropped while a command was
	// pending.
	ErrDeviceDisconnected = errors.New("obd: device disconnected")
)

// FramingError reports a malformed fragment sequence, such as data observed
// for a response that has already been terminated. It is surfaced, never
// fatal to the assembler.
type FramingError struct {
	Offset int
	Reason string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("obd: framing error at offset %d: %s", e.Offset, e.Reason)
}
