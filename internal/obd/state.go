package obd

import (
	"sync"
	"time"
)

// ConnectionState tracks the BLE link lifecycle. Transitions are strictly
// linear per attempt; the store never holds two attempts at once.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Disconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// ActionType names a state transition. The constants double as trace labels,
// so their spelling is part of the observable surface.
type ActionType string

const (
	ActionConnectStart               ActionType = "CONNECT_START"
	ActionConnectSuccess             ActionType = "CONNECT_SUCCESS"
	ActionConnectFailure             ActionType = "CONNECT_FAILURE"
	ActionDeviceDisconnected         ActionType = "DEVICE_DISCONNECTED"
	ActionSendCommandStart           ActionType = "SEND_COMMAND_START"
	ActionCommandSuccess             ActionType = "COMMAND_SUCCESS"
	ActionCommandFailure             ActionType = "COMMAND_FAILURE"
	ActionCommandTimeout             ActionType = "COMMAND_TIMEOUT"
	ActionDataReceived               ActionType = "DATA_RECEIVED"
	ActionSetStreamingStatus         ActionType = "SET_STREAMING_STATUS"
	ActionUpdateLastSuccessTimestamp ActionType = "UPDATE_LAST_SUCCESS_TIMESTAMP"
	ActionStreamingInactivityTimeout ActionType = "STREAMING_INACTIVITY_TIMEOUT"
)

// Action is one dispatched transition. Only the fields relevant to the
// Type are populated.
type Action struct {
	Type      ActionType
	Device    string        // CONNECT_SUCCESS
	Config    *DeviceConfig // CONNECT_SUCCESS
	Err       error         // CONNECT_FAILURE, COMMAND_FAILURE
	Bytes     []byte        // DATA_RECEIVED
	Streaming bool          // SET_STREAMING_STATUS
	Timestamp time.Time     // UPDATE_LAST_SUCCESS_TIMESTAMP
}

// Snapshot is an immutable view of the engine state.
type Snapshot struct {
	Connection      ConnectionState
	Device          string
	Config          *DeviceConfig
	CommandInFlight bool
	Streaming       bool
	LastSuccess     time.Time
	LastError       error
}

// Listener observes every dispatched action together with the snapshot it
// produced. Listeners run synchronously on the dispatch path and must not
// call back into the engine.
type Listener func(Action, Snapshot)

// Store is the single mutator of engine state. Components communicate intent
// by dispatching actions; nothing outside the reducer writes a state field.
type Store struct {
	mu        sync.Mutex
	snap      Snapshot
	listeners map[int]Listener
	nextID    int
}

func NewStore() *Store {
	return &Store{listeners: make(map[int]Listener)}
}

// State returns the current snapshot.
func (s *Store) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe registers a listener and returns its cancel function.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Dispatch applies the action and notifies listeners with the new snapshot.
func (s *Store) Dispatch(a Action) Snapshot {
	s.mu.Lock()
	s.snap = reduce(s.snap, a)
	snap := s.snap
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(a, snap)
	}
	return snap
}

func reduce(snap Snapshot, a Action) Snapshot {
	switch a.Type {
	case ActionConnectStart:
		snap.Connection = Connecting
		snap.LastError = nil
	case ActionConnectSuccess:
		snap.Connection = Connected
		snap.Device = a.Device
		snap.Config = a.Config
		snap.LastError = nil
	case ActionConnectFailure:
		snap.Connection = Disconnected
		snap.Device = ""
		snap.Config = nil
		snap.LastError = a.Err
	case ActionDeviceDisconnected:
		snap.Connection = Disconnected
		snap.Device = ""
		snap.Config = nil
		snap.CommandInFlight = false
		snap.Streaming = false
	case ActionSendCommandStart:
		snap.CommandInFlight = true
	case ActionCommandSuccess:
		snap.CommandInFlight = false
		snap.LastError = nil
	case ActionCommandFailure:
		snap.CommandInFlight = false
		snap.LastError = a.Err
	case ActionCommandTimeout:
		snap.CommandInFlight = false
		snap.LastError = ErrCommandTimeout
	case ActionDataReceived:
		// Observable for tracing; carries no state change.
	case ActionSetStreamingStatus:
		snap.Streaming = a.Streaming
	case ActionUpdateLastSuccessTimestamp:
		snap.LastSuccess = a.Timestamp
	case ActionStreamingInactivityTimeout:
		snap.Streaming = false
	}
	return snap
}
