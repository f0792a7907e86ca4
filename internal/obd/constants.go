package obd

import "time"

const (
	// commandTerminator is appended to every command written to the adapter.
	// Per the ELM327 serial convention the write terminator is CR; the '>'
	// prompt is strictly a read-side marker and must never be written.
	commandTerminator = '\r'

	// promptByte is the '>' ELM327 firmware sends when a response is complete
	// and the interpreter is ready for the next command.
	promptByte = 0x3E
)

// DefaultCommandTimeout bounds how long a command waits for the prompt byte.
const DefaultCommandTimeout = 4000 * time.Millisecond

// DefaultStreamingInactivityTimeout is the window after which streaming mode
// is switched off when no command has completed successfully.
const DefaultStreamingInactivityTimeout = 4000 * time.Millisecond
