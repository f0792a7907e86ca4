package obd

import (
	"context"
	"sync"
	"testing"

	"github.com/rakshitbharat/gobd-ble/internal/ble"
)

// mockPeripheral simulates an ELM327 BLE clone at the transport boundary.
type mockPeripheral struct {
	mu           sync.Mutex
	address      string
	services     map[string][]string
	writes       [][]byte
	writeModes   []ble.WriteMode
	writeErr     error
	autoReply    []byte // delivered as one notification after each write
	notifyFn     func([]byte)
	disconnectFn func()
	disconnected bool
}

// vgateServices advertises the highest-priority built-in profile.
func vgateServices() map[string][]string {
	return map[string][]string{
		"fff0": {"fff1", "fff2"},
	}
}

func newMockPeripheral(services map[string][]string) *mockPeripheral {
	return &mockPeripheral{
		address:  "AA:BB:CC:DD:EE:FF",
		services: services,
	}
}

func (p *mockPeripheral) Address() string { return p.address }

func (p *mockPeripheral) Services(_ context.Context) (map[string][]string, error) {
	return p.services, nil
}

func (p *mockPeripheral) Write(_ string, data []byte, mode ble.WriteMode) error {
	p.mu.Lock()
	if p.writeErr != nil {
		err := p.writeErr
		p.mu.Unlock()
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	p.writes = append(p.writes, cp)
	p.writeModes = append(p.writeModes, mode)
	reply := p.autoReply
	p.mu.Unlock()

	if reply != nil {
		go p.SimulateNotification(reply)
	}
	return nil
}

func (p *mockPeripheral) Subscribe(_ string, fn func([]byte)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifyFn = fn
	return nil
}

func (p *mockPeripheral) OnDisconnect(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnectFn = fn
}

func (p *mockPeripheral) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = true
	return nil
}

// SimulateNotification delivers one raw fragment from the adapter.
func (p *mockPeripheral) SimulateNotification(data []byte) {
	p.mu.Lock()
	fn := p.notifyFn
	p.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

// SimulateDisconnect triggers the transport disconnect callback.
func (p *mockPeripheral) SimulateDisconnect() {
	p.mu.Lock()
	fn := p.disconnectFn
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *mockPeripheral) writeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

func (p *mockPeripheral) lastWrite() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.writes) == 0 {
		return nil
	}
	return p.writes[len(p.writes)-1]
}

func TestMockPeripheralImplementsInterface(t *testing.T) {
	var _ ble.Peripheral = (*mockPeripheral)(nil)
}
