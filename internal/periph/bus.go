// ABOUTME: Scoped ownership token for the shared peripheral data bus
// ABOUTME: Serializes RFID reader and storage card access around each operation

package periph

import "sync"

// Device identifies a peripheral that shares the data bus.
type Device int

const (
	DeviceReader Device = iota
	DeviceStorage
)

func (d Device) String() string {
	switch d {
	case DeviceReader:
		return "reader"
	case DeviceStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Bus guards the data bus shared by the tag reader and the storage card.
// The bus must be selected for a device before any I/O against it, and
// held for the duration of the operation. Acquire returns a release
// closure; nothing else hands out bus access.
type Bus struct {
	mu     sync.Mutex
	sel    func(Device)
	holder Device
}

// NewBus creates a bus whose select hook reconfigures the underlying
// transport for the given device. A nil hook is valid and leaves
// selection to the drivers themselves.
func NewBus(sel func(Device)) *Bus {
	return &Bus{sel: sel}
}

// Acquire takes exclusive ownership of the bus, selects the device, and
// returns the release closure. Blocks until the current holder releases.
func (b *Bus) Acquire(d Device) (release func()) {
	b.mu.Lock()
	b.holder = d
	if b.sel != nil {
		b.sel(d)
	}
	return b.mu.Unlock
}
