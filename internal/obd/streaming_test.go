package obd

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestStreamingAutoStopOnInactivity(t *testing.T) {
	p := newMockPeripheral(vgateServices())
	m := testManager(t, p) // 60ms inactivity window

	var timeouts atomic.Int32
	cancel := m.Subscribe(func(a Action, _ Snapshot) {
		if a.Type == ActionStreamingInactivityTimeout {
			timeouts.Add(1)
		}
	})
	defer cancel()

	m.SetStreaming(true)
	if !m.State().Streaming {
		t.Fatal("Streaming not enabled")
	}

	waitFor(t, "inactivity auto-stop", func() bool { return !m.State().Streaming })

	// Give a second (buggy) watchdog tick a chance to fire before counting.
	time.Sleep(150 * time.Millisecond)
	if n := timeouts.Load(); n != 1 {
		t.Errorf("STREAMING_INACTIVITY_TIMEOUT observed %d times, want exactly once", n)
	}
}

func TestStreamingKeptAliveBySuccessfulCommands(t *testing.T) {
	p := newMockPeripheral(vgateServices())
	p.autoReply = []byte("41 0C 1A F8>")
	m := testManager(t, p) // 60ms inactivity window

	m.SetStreaming(true)
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := m.SendCommand("010C"); err != nil {
			t.Fatalf("SendCommand() error = %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if !m.State().Streaming {
		t.Error("streaming stopped despite continuous successful commands")
	}

	// Stop polling; the watchdog must now fire.
	waitFor(t, "auto-stop after polling ends", func() bool { return !m.State().Streaming })
}

func TestSetStreamingDisableStopsWatchdog(t *testing.T) {
	p := newMockPeripheral(vgateServices())
	m := testManager(t, p)

	var timeouts atomic.Int32
	cancel := m.Subscribe(func(a Action, _ Snapshot) {
		if a.Type == ActionStreamingInactivityTimeout {
			timeouts.Add(1)
		}
	})
	defer cancel()

	m.SetStreaming(true)
	m.SetStreaming(false)
	if m.State().Streaming {
		t.Fatal("Streaming still enabled")
	}

	time.Sleep(150 * time.Millisecond)
	if n := timeouts.Load(); n != 0 {
		t.Errorf("watchdog fired %d times after explicit disable", n)
	}
}

func TestSetStreamingIdempotent(t *testing.T) {
	p := newMockPeripheral(vgateServices())
	m := testManager(t, p)

	var sets atomic.Int32
	cancel := m.Subscribe(func(a Action, _ Snapshot) {
		if a.Type == ActionSetStreamingStatus {
			sets.Add(1)
		}
	})
	defer cancel()

	m.SetStreaming(true)
	m.SetStreaming(true)
	if n := sets.Load(); n != 1 {
		t.Errorf("SET_STREAMING_STATUS dispatched %d times for repeated enable, want 1", n)
	}
	m.SetStreaming(false)
}

func TestDisconnectStopsStreaming(t *testing.T) {
	p := newMockPeripheral(vgateServices())
	m := testManager(t, p)

	var timeouts atomic.Int32
	cancel := m.Subscribe(func(a Action, _ Snapshot) {
		if a.Type == ActionStreamingInactivityTimeout {
			timeouts.Add(1)
		}
	})
	defer cancel()

	m.SetStreaming(true)
	p.SimulateDisconnect()

	if m.State().Streaming {
		t.Error("Streaming still set after disconnect")
	}
	time.Sleep(150 * time.Millisecond)
	if n := timeouts.Load(); n != 0 {
		t.Errorf("watchdog fired %d times after disconnect tore it down", n)
	}
}
