// Package ble defines the transport boundary between the OBD protocol engine
// and the underlying Bluetooth Low Energy stack. The engine only depends on
// these interfaces; the production implementation over tinygo-org/bluetooth
// lives in tinygo.go, and tests drive the engine through a mock.
package ble

import "context"

// WriteMode selects how a characteristic write is performed. ELM327 clones
// differ here: most accept write-without-response, a few (Zentri-based SPP
// bridges) want an acknowledged write.
type WriteMode int

const (
	WriteWithResponse WriteMode = iota
	WriteWithoutResponse
)

func (m WriteMode) String() string {
	switch m {
	case WriteWithResponse:
		return "with-response"
	case WriteWithoutResponse:
		return "without-response"
	default:
		return "unknown"
	}
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Peripheral represents an active BLE connection to a peripheral.
type Peripheral interface {
	// Address returns the peripheral address (MAC, or CoreBluetooth UUID on macOS).
	Address() string
	// Services returns the characteristic UUIDs grouped by service UUID,
	// as retrieved from the peripheral. UUID casing is whatever the stack
	// reports; callers must not assume a normalization.
	Services(ctx context.Context) (map[string][]string, error)
	// Write sends data to the characteristic with the given UUID.
	Write(charUUID string, data []byte, mode WriteMode) error
	// Subscribe registers a callback for notifications on the characteristic.
	// Fragments are delivered in arrival order, one callback per notification.
	Subscribe(charUUID string, fn func(data []byte)) error
	// OnDisconnect registers a callback invoked when the connection drops,
	// whether remotely or via Disconnect.
	OnDisconnect(fn func())
	// Disconnect terminates the connection.
	Disconnect() error
}

// Adapter abstracts the BLE hardware adapter.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan reports discovered peripherals to found until found returns true
	// or ctx is cancelled.
	Scan(ctx context.Context, found func(Device) bool) error
	// Connect establishes a connection to the peripheral at the given address.
	Connect(ctx context.Context, address string) (Peripheral, error)
}
