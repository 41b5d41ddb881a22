// Package ble provides the Bluetooth side of receipt printing: a transport
// abstraction over the GATT and native BLE stacks (plus classic serial
// printers), device discovery, and the printer session that negotiates a
// writable characteristic and survives restarts through a persisted device
// record.
package ble

import (
	"context"
	"fmt"
)

// UnknownDeviceName is shown for peripherals that do not advertise a name.
const UnknownDeviceName = "Unknown Device"

// Device represents a discovered or bonded peripheral.
type Device struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	// RSSI is only set by transports that report it during an active scan.
	RSSI *int `yaml:"-" json:"rssi,omitempty"`
}

// DisplayName returns the advertised name or UnknownDeviceName.
func (d Device) DisplayName() string {
	if d.Name == "" {
		return UnknownDeviceName
	}
	return d.Name
}

func (d Device) String() string {
	if d.RSSI != nil {
		return fmt.Sprintf("%s [%s] %ddBm", d.DisplayName(), d.ID, *d.RSSI)
	}
	return fmt.Sprintf("%s [%s]", d.DisplayName(), d.ID)
}

// Properties is the set of capabilities a characteristic reports.
type Properties uint8

const (
	PropWrite Properties = 1 << iota
	PropWriteWithoutResponse
	// PropUnreported marks characteristics on platforms that do not expose
	// properties; writes are attempted without response first.
	PropUnreported
)

// Writable reports whether some write mode may be used.
func (p Properties) Writable() bool {
	return p&(PropWrite|PropWriteWithoutResponse|PropUnreported) != 0
}

func (p Properties) String() string {
	switch {
	case p&PropUnreported != 0:
		return "unreported"
	case p&PropWrite != 0 && p&PropWriteWithoutResponse != 0:
		return "write,write-without-response"
	case p&PropWrite != 0:
		return "write"
	case p&PropWriteWithoutResponse != 0:
		return "write-without-response"
	default:
		return "none"
	}
}

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	UUID() string
	Properties() Properties
	// WriteWithoutResponse sends data without waiting for acknowledgement.
	WriteWithoutResponse(data []byte) error
	// WriteWithResponse sends data and waits for the peripheral to confirm.
	WriteWithResponse(data []byte) error
}

// Service represents a primary GATT service on a connected device.
type Service interface {
	UUID() string
	// Characteristic resolves a single characteristic by UUID.
	Characteristic(uuid string) (Characteristic, error)
	// Characteristics enumerates every characteristic of the service.
	Characteristics() ([]Characteristic, error)
}

// Connection represents an active link to a peripheral.
type Connection interface {
	// PrimaryService resolves a single primary service by UUID.
	PrimaryService(uuid string) (Service, error)
	// Services enumerates every primary service the device exposes.
	Services() ([]Service, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the link drops without
	// Disconnect being called. The returned func unregisters it.
	OnDisconnect(callback func()) (cancel func())
}

// Transport abstracts the Bluetooth stack so the discovery engine and the
// session are written once.
type Transport interface {
	// Enable powers on the adapter. Safe to call repeatedly.
	Enable() error
	// Scan reports advertisements to found until ctx ends or StopScan is
	// called. Duplicates are reported; callers dedupe by Device.ID.
	Scan(ctx context.Context, found func(Device)) error
	// StopScan ends a running scan. It is a no-op when none is running.
	StopScan() error
	// BondedDevices returns already paired or connected devices without
	// scanning.
	BondedDevices(ctx context.Context) ([]Device, error)
	// Connect establishes a link to the device with the given id.
	Connect(ctx context.Context, id string) (Connection, error)
}

// Write sends data using the most reliable mode the characteristic supports:
// without response when available, otherwise a confirmed write.
func Write(ch Characteristic, data []byte) error {
	props := ch.Properties()
	switch {
	case props&PropWriteWithoutResponse != 0:
		if err := ch.WriteWithoutResponse(data); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrWrite, ch.UUID(), err)
		}
	case props&PropWrite != 0:
		if err := ch.WriteWithResponse(data); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrWrite, ch.UUID(), err)
		}
	case props&PropUnreported != 0:
		if err := ch.WriteWithoutResponse(data); err != nil {
			if err2 := ch.WriteWithResponse(data); err2 != nil {
				return fmt.Errorf("%w: %s: %w", ErrWrite, ch.UUID(), err2)
			}
		}
	default:
		return fmt.Errorf("%w: %s supports no write mode", ErrWrite, ch.UUID())
	}
	return nil
}
