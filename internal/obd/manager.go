// Package obd implements the command/response protocol engine for ELM327
// compatible OBD-II adapters reached over a BLE serial-port emulation. The
// transport (scanning, connecting, GATT plumbing) is a collaborator behind
// the ble package interfaces; this package owns profile negotiation, command
// framing and timeouts, chunk-preserving reassembly, streaming inactivity
// tracking, and the reducer-style state store.
package obd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rakshitbharat/gobd-ble/internal/ble"
)

var errConnectInProgress = errors.New("obd: connection attempt already in progress")

// Options configures a Manager. Zero values fall back to the defaults.
type Options struct {
	CommandTimeout   time.Duration // default DefaultCommandTimeout
	InactivityWindow time.Duration // default DefaultStreamingInactivityTimeout
	ExtraProfiles    []Profile     // tried after the built-in table
	Logger           *slog.Logger  // default slog.Default()
}

// Manager wires the transport to the protocol engine. All engine state is
// serialized behind one mutex: notification fragments, timer expiry,
// disconnects and command submission never interleave mid-transition, which
// is what lets settlement be exactly-once without further machinery.
type Manager struct {
	store *Store
	log   *slog.Logger

	commandTimeout   time.Duration
	inactivityWindow time.Duration
	extraProfiles    []Profile

	mu         sync.Mutex
	peripheral ble.Peripheral
	config     *DeviceConfig
	pending    *pendingCommand
	connecting bool
	watchdog   *streamWatchdog
}

// NewManager creates an engine with its own state store.
func NewManager(opts Options) *Manager {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.InactivityWindow <= 0 {
		opts.InactivityWindow = DefaultStreamingInactivityTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		store:            NewStore(),
		log:              opts.Logger,
		commandTimeout:   opts.CommandTimeout,
		inactivityWindow: opts.InactivityWindow,
		extraProfiles:    opts.ExtraProfiles,
	}
}

// State returns the current engine snapshot.
func (m *Manager) State() Snapshot {
	return m.store.State()
}

// Subscribe registers a listener for every dispatched transition.
// Listeners run on the dispatch path and must not call back into the Manager.
func (m *Manager) Subscribe(fn Listener) (cancel func()) {
	return m.store.Subscribe(fn)
}

// Connect negotiates a UUID profile against the peripheral and arms the
// notification and disconnect callbacks. The peripheral must already be
// link-connected; on ErrNoCompatibleProfile the caller still holds the bare
// link but the engine stays disconnected.
func (m *Manager) Connect(ctx context.Context, p ble.Peripheral) error {
	m.mu.Lock()
	if m.connecting {
		m.mu.Unlock()
		return errConnectInProgress
	}
	if m.config != nil {
		m.mu.Unlock()
		return fmt.Errorf("obd: already connected to %s", m.store.State().Device)
	}
	m.connecting = true
	m.store.Dispatch(Action{Type: ActionConnectStart})
	m.mu.Unlock()

	config, err := m.negotiate(ctx, p)
	if err != nil {
		m.mu.Lock()
		m.connecting = false
		m.store.Dispatch(Action{Type: ActionConnectFailure, Err: err})
		m.mu.Unlock()
		return err
	}

	if err := p.Subscribe(config.NotifyChar, m.handleFragment); err != nil {
		err = fmt.Errorf("obd: enable notifications: %w", err)
		m.mu.Lock()
		m.connecting = false
		m.store.Dispatch(Action{Type: ActionConnectFailure, Err: err})
		m.mu.Unlock()
		return err
	}
	p.OnDisconnect(m.handleDisconnect)

	m.mu.Lock()
	m.connecting = false
	m.peripheral = p
	m.config = &config
	m.store.Dispatch(Action{Type: ActionConnectSuccess, Device: p.Address(), Config: &config})
	m.mu.Unlock()

	m.log.Info("[OBD] connected", "device", p.Address(), "profile", config.ProfileName,
		"writeMode", config.WriteMode.String())
	return nil
}

// NegotiateProfile probes the peripheral against the profile table without
// arming the engine. Useful for compatibility checks before committing to a
// connection.
func (m *Manager) NegotiateProfile(ctx context.Context, p ble.Peripheral) (DeviceConfig, error) {
	return m.negotiate(ctx, p)
}

// negotiate retrieves the peripheral's services and runs profile selection.
func (m *Manager) negotiate(ctx context.Context, p ble.Peripheral) (DeviceConfig, error) {
	services, err := p.Services(ctx)
	if err != nil {
		return DeviceConfig{}, fmt.Errorf("obd: discover services: %w", err)
	}
	config, err := Negotiate(services, m.extraProfiles)
	if err != nil {
		m.log.Warn("[OBD] no compatible profile", "device", p.Address(), "services", len(services))
		return DeviceConfig{}, err
	}
	m.log.Debug("[OBD] profile matched", "profile", config.ProfileName, "service", config.Service)
	return config, nil
}

// Disconnect tears down the engine side of the connection. Any pending
// command is rejected with ErrDeviceDisconnected, exactly as on a remote
// drop: user intent does not change the command's outcome.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	p := m.peripheral
	m.mu.Unlock()
	if p == nil {
		return nil
	}

	var err error
	if derr := p.Disconnect(); derr != nil {
		err = fmt.Errorf("obd: disconnect: %w", derr)
	}
	// The transport fires OnDisconnect on an actual drop; invoking the
	// handler here as well keeps teardown deterministic when it does not.
	// handleDisconnect is idempotent.
	m.handleDisconnect()
	return err
}

// handleDisconnect is the single disconnect path, for both remote drops and
// user-initiated teardown.
func (m *Manager) handleDisconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.peripheral == nil && m.config == nil {
		return
	}
	m.peripheral = nil
	m.config = nil

	if pc := m.pending; pc != nil {
		m.settleLocked(pc, nil, ErrDeviceDisconnected,
			Action{Type: ActionCommandFailure, Err: ErrDeviceDisconnected})
	}
	m.stopWatchdogLocked()
	m.store.Dispatch(Action{Type: ActionDeviceDisconnected})
	m.log.Info("[OBD] disconnected")
}
