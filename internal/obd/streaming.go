package obd

import "time"

// streamWatchdog is the inactivity monitor for streaming mode. One exists
// per enable; it dies on disable, disconnect, or after forcing streaming off.
type streamWatchdog struct {
	stop      chan struct{}
	startedAt time.Time
}

// SetStreaming toggles streaming mode. The engine does not issue commands in
// this mode — that loop belongs to the caller — it only watches for command
// inactivity and turns the mode off when the window elapses with no
// successful completion. Setting the current value again is a no-op.
func (m *Manager) SetStreaming(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if enabled == m.store.State().Streaming {
		return
	}
	m.store.Dispatch(Action{Type: ActionSetStreamingStatus, Streaming: enabled})
	if enabled {
		m.startWatchdogLocked()
	} else {
		m.stopWatchdogLocked()
	}
}

func (m *Manager) startWatchdogLocked() {
	w := &streamWatchdog{stop: make(chan struct{}), startedAt: time.Now()}
	m.watchdog = w
	go m.watchInactivity(w)
}

func (m *Manager) stopWatchdogLocked() {
	if m.watchdog != nil {
		close(m.watchdog.stop)
		m.watchdog = nil
	}
}

// watchInactivity ticks at the inactivity window and compares against the
// last successful command completion. Successful commands refresh the
// reference timestamp through the store, so an active polling loop keeps
// streaming alive indefinitely.
func (m *Manager) watchInactivity(w *streamWatchdog) {
	ticker := time.NewTicker(m.inactivityWindow)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			if m.watchdog != w {
				// Superseded by a later enable or torn down by disconnect.
				m.mu.Unlock()
				return
			}
			ref := m.store.State().LastSuccess
			if ref.Before(w.startedAt) {
				ref = w.startedAt
			}
			if time.Since(ref) >= m.inactivityWindow {
				m.log.Warn("[OBD] streaming stopped by inactivity",
					"window", m.inactivityWindow)
				m.store.Dispatch(Action{Type: ActionStreamingInactivityTimeout})
				m.watchdog = nil
				m.mu.Unlock()
				return
			}
			m.mu.Unlock()
		}
	}
}
