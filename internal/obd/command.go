package obd

import (
	"fmt"
	"strings"
	"time"
)

// ReturnKind selects the shape of a command's result.
type ReturnKind int

const (
	// ReturnText decodes the payload to a string with trailing CR/LF trimmed.
	ReturnText ReturnKind = iota
	// ReturnBytes returns the raw payload untouched.
	ReturnBytes
	// ReturnChunked returns the payload plus the individual notification
	// fragments that produced it.
	ReturnChunked
)

// SendOptions tunes a single command submission.
type SendOptions struct {
	Timeout time.Duration // default: the Manager's command timeout
	Return  ReturnKind    // default ReturnText
}

// Result is a settled command. Exactly one of Text, Raw or Chunked is
// populated, according to the requested ReturnKind.
type Result struct {
	Kind    ReturnKind
	Text    string
	Raw     []byte
	Chunked *ChunkedResponse
}

type commandResult struct {
	res *Result
	err error
}

// pendingCommand is the engine's central invariant: at most one exists at a
// time. It is created on submission and destroyed on prompt, timeout or
// disconnect, whichever settles it first.
type pendingCommand struct {
	kind    ReturnKind
	asm     *assembler
	timer   *time.Timer
	settled bool
	result  chan commandResult // buffered; settlement never blocks
}

// Send writes a command to the adapter and blocks until the prompt byte
// arrives, the timeout fires, or the device disconnects. It fails fast with
// ErrNotConnected or ErrCommandInProgress without touching any in-flight
// state.
func (m *Manager) Send(text string, opts SendOptions) (*Result, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = m.commandTimeout
	}

	m.mu.Lock()
	if m.config == nil {
		m.mu.Unlock()
		return nil, ErrNotConnected
	}
	if m.pending != nil {
		m.mu.Unlock()
		return nil, ErrCommandInProgress
	}

	pc := &pendingCommand{
		kind:   opts.Return,
		asm:    newAssembler(opts.Return == ReturnChunked),
		result: make(chan commandResult, 1),
	}
	m.pending = pc
	m.store.Dispatch(Action{Type: ActionSendCommandStart})

	payload := append([]byte(text), commandTerminator)
	m.log.Debug("[OBD] write", "command", text, "bytes", len(payload))
	if err := m.peripheral.Write(m.config.WriteChar, payload, m.config.WriteMode); err != nil {
		err = fmt.Errorf("obd: write command: %w", err)
		m.settleLocked(pc, nil, err, Action{Type: ActionCommandFailure, Err: err})
		m.mu.Unlock()
		return nil, err
	}
	pc.timer = time.AfterFunc(opts.Timeout, func() { m.handleTimeout(pc) })
	m.mu.Unlock()

	r := <-pc.result
	return r.res, r.err
}

// SendCommand executes a command and returns the textual response.
func (m *Manager) SendCommand(text string) (string, error) {
	res, err := m.Send(text, SendOptions{Return: ReturnText})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// SendCommandRaw executes a command and returns the raw payload bytes.
func (m *Manager) SendCommandRaw(text string) ([]byte, error) {
	res, err := m.Send(text, SendOptions{Return: ReturnBytes})
	if err != nil {
		return nil, err
	}
	return res.Raw, nil
}

// SendCommandChunked executes a command and returns the payload together
// with the raw notification fragments that carried it.
func (m *Manager) SendCommandChunked(text string) (*ChunkedResponse, error) {
	res, err := m.Send(text, SendOptions{Return: ReturnChunked})
	if err != nil {
		return nil, err
	}
	return res.Chunked, nil
}

// handleFragment is the transport's notification callback.
func (m *Manager) handleFragment(buf []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store.Dispatch(Action{Type: ActionDataReceived, Bytes: buf})

	pc := m.pending
	if pc == nil || pc.settled {
		// Unsolicited data: adapters chatter after timeouts and resets.
		m.log.Debug("[OBD] dropping fragment with no pending command", "bytes", len(buf))
		return
	}

	if !pc.asm.append(buf) {
		return
	}

	res, err := shapeResult(pc)
	if err != nil {
		m.settleLocked(pc, nil, err, Action{Type: ActionCommandFailure, Err: err})
		return
	}
	m.settleLocked(pc, res, nil, Action{Type: ActionCommandSuccess})
}

// shapeResult converts an assembled payload into the requested return kind.
func shapeResult(pc *pendingCommand) (*Result, error) {
	switch pc.kind {
	case ReturnText:
		text := strings.TrimRight(string(pc.asm.payload()), "\r\n")
		return &Result{Kind: ReturnText, Text: text}, nil
	case ReturnBytes:
		return &Result{Kind: ReturnBytes, Raw: pc.asm.payload()}, nil
	case ReturnChunked:
		return &Result{Kind: ReturnChunked, Chunked: pc.asm.chunked()}, nil
	default:
		return nil, &FramingError{Offset: len(pc.asm.payload()), Reason: "unknown return kind"}
	}
}

// handleTimeout fires from the command timer. A prompt byte arriving later
// finds no pending command and is dropped.
func (m *Manager) handleTimeout(pc *pendingCommand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pc.settled {
		return
	}
	m.log.Warn("[OBD] command timed out", "buffered", len(pc.asm.payload()))
	m.settleLocked(pc, nil, ErrCommandTimeout, Action{Type: ActionCommandTimeout})
}

// settleLocked resolves or rejects the pending command exactly once. The
// caller holds m.mu, so no new command can slip in between the terminator
// being observed and the result being delivered. Double settlement (timer
// racing a prompt, disconnect racing both) is a no-op.
func (m *Manager) settleLocked(pc *pendingCommand, res *Result, err error, act Action) {
	if pc.settled {
		return
	}
	pc.settled = true
	if pc.timer != nil {
		pc.timer.Stop()
	}
	if m.pending == pc {
		m.pending = nil
	}
	m.store.Dispatch(act)
	if err == nil {
		m.store.Dispatch(Action{Type: ActionUpdateLastSuccessTimestamp, Timestamp: time.Now()})
	}
	pc.result <- commandResult{res: res, err: err}
}
