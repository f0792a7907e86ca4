package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"
)

// TinygoAdapter implements Adapter on top of tinygo-org/bluetooth. On macOS,
// peripheral addresses are CoreBluetooth UUIDs rather than MAC addresses; the
// address strings returned by Scan work unmodified with Connect on every
// platform.
type TinygoAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects the peripherals map.
	mu          sync.Mutex
	peripherals map[string]*tinygoPeripheral // keyed by address string
}

// NewTinygoAdapter creates a BLE adapter backed by the platform default stack.
func NewTinygoAdapter() *TinygoAdapter {
	return &TinygoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		peripherals: make(map[string]*tinygoPeripheral),
	}
}

func (a *TinygoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return err
	}

	// The adapter-level connect handler is the only disconnect signal the
	// stack gives us; route it to the peripheral's OnDisconnect callback.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := device.Address.String()
		a.mu.Lock()
		p, ok := a.peripherals[id]
		delete(a.peripherals, id)
		a.mu.Unlock()
		if ok {
			p.fireDisconnect()
		}
	})

	return nil
}

func (a *TinygoAdapter) Scan(ctx context.Context, found func(Device) bool) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.adapter.StopScan()
		case <-done:
		}
	}()

	seen := make(map[string]bool)
	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		addr := result.Address.String()
		if seen[addr] {
			return
		}
		seen[addr] = true
		dev := Device{
			Name:    result.LocalName(),
			Address: addr,
			RSSI:    int(result.RSSI),
		}
		if found(dev) {
			adapter.StopScan()
		}
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("ble: scan: %w", err)
	}
	return nil
}

func (a *TinygoAdapter) Connect(ctx context.Context, address string) (Peripheral, error) {
	var addr bluetooth.Address
	addr.Set(address)

	// tinygo/bluetooth's Connect blocks internally with its own timeout.
	// Wrap it so our ctx cancellation is also respected.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ble: connect to %s: %w", address, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", address, result.err)
		}
		p := &tinygoPeripheral{
			device:  result.device,
			address: address,
			chars:   make(map[string]*bluetooth.DeviceCharacteristic),
		}
		a.mu.Lock()
		a.peripherals[address] = p
		a.mu.Unlock()
		return p, nil
	}
}

// Compile-time check that TinygoAdapter implements Adapter.
var _ Adapter = (*TinygoAdapter)(nil)

type tinygoPeripheral struct {
	device  bluetooth.Device
	address string

	mu           sync.Mutex
	chars        map[string]*bluetooth.DeviceCharacteristic // keyed by upper-case UUID
	disconnectCb func()
	disconnected bool
}

func (p *tinygoPeripheral) Address() string {
	return p.address
}

// Services performs full service and characteristic discovery. Discovered
// characteristic handles are cached so Write and Subscribe don't rediscover.
func (p *tinygoPeripheral) Services(ctx context.Context) (map[string][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	svcs, err := p.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}

	out := make(map[string][]string, len(svcs))
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range svcs {
		svcUUID := svcs[i].UUID().String()
		chars, err := svcs[i].DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: discover characteristics for %s: %w", svcUUID, err)
		}
		charUUIDs := make([]string, 0, len(chars))
		for j := range chars {
			charUUID := chars[j].UUID().String()
			charUUIDs = append(charUUIDs, charUUID)
			p.chars[strings.ToUpper(charUUID)] = &chars[j]
		}
		out[svcUUID] = charUUIDs
	}
	return out, nil
}

func (p *tinygoPeripheral) characteristic(charUUID string) (*bluetooth.DeviceCharacteristic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	char, ok := p.chars[strings.ToUpper(charUUID)]
	if !ok {
		return nil, fmt.Errorf("ble: characteristic %s not discovered", charUUID)
	}
	return char, nil
}

func (p *tinygoPeripheral) Write(charUUID string, data []byte, mode WriteMode) error {
	char, err := p.characteristic(charUUID)
	if err != nil {
		return err
	}
	// tinygo bluetooth on Linux only supports write-without-response
	// (tinygo-org/bluetooth#153), so an acknowledged write is downgraded.
	// ELM327 clones that advertise write-with-response accept both.
	_, err = char.WriteWithoutResponse(data)
	return err
}

func (p *tinygoPeripheral) Subscribe(charUUID string, fn func([]byte)) error {
	char, err := p.characteristic(charUUID)
	if err != nil {
		return err
	}
	return char.EnableNotifications(func(buf []byte) {
		fn(buf)
	})
}

func (p *tinygoPeripheral) OnDisconnect(fn func()) {
	p.mu.Lock()
	p.disconnectCb = fn
	p.mu.Unlock()
}

func (p *tinygoPeripheral) Disconnect() error {
	return p.device.Disconnect()
}

// fireDisconnect invokes the registered disconnect callback at most once.
func (p *tinygoPeripheral) fireDisconnect() {
	p.mu.Lock()
	cb := p.disconnectCb
	fired := p.disconnected
	p.disconnected = true
	p.mu.Unlock()
	if !fired && cb != nil {
		cb()
	}
}

// Compile-time check that tinygoPeripheral implements Peripheral.
var _ Peripheral = (*tinygoPeripheral)(nil)
