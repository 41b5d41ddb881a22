package ble

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// Serial Port Profile UUIDs. Classic printers bound to a serial device
// (rfcomm on Linux, COM port on Windows) are presented as one SPP service
// with one write-only characteristic so the session can negotiate them
// like any GATT printer.
const (
	SPPServiceUUID        = "00001101-0000-1000-8000-00805f9b34fb"
	SPPCharacteristicUUID = "00001101-0000-1000-8000-00805f9b34fb"
)

// SerialTransport talks to classic Bluetooth printers through serial ports.
type SerialTransport struct {
	baudRate int
	// listPorts is swapped in tests.
	listPorts func() ([]string, error)
	open      func(name string, mode *serial.Mode) (serial.Port, error)
}

// NewSerialTransport creates a serial transport at the given baud rate.
func NewSerialTransport(baudRate int) *SerialTransport {
	if baudRate <= 0 {
		baudRate = 9600
	}
	return &SerialTransport{
		baudRate:  baudRate,
		listPorts: serial.GetPortsList,
		open:      serial.Open,
	}
}

var _ Transport = (*SerialTransport)(nil)

func (t *SerialTransport) Enable() error { return nil }

// Scan reports every serial port once. Ports need no radio scan, so it
// returns without waiting for ctx.
func (t *SerialTransport) Scan(ctx context.Context, found func(Device)) error {
	devices, err := t.BondedDevices(ctx)
	if err != nil {
		return err
	}
	for _, d := range devices {
		if ctx.Err() != nil {
			return nil
		}
		found(d)
	}
	return nil
}

func (t *SerialTransport) StopScan() error { return nil }

func (t *SerialTransport) BondedDevices(_ context.Context) ([]Device, error) {
	ports, err := t.listPorts()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	devices := make([]Device, 0, len(ports))
	for _, p := range ports {
		devices = append(devices, Device{ID: p, Name: serialPortName(p)})
	}
	return devices, nil
}

// serialPortName turns "/dev/rfcomm0" into "rfcomm0" and keeps "COM3".
func serialPortName(port string) string {
	if strings.HasPrefix(strings.ToUpper(port), "COM") {
		return port
	}
	return filepath.Base(port)
}

func (t *SerialTransport) Connect(ctx context.Context, id string) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	port, err := t.open(id, &serial.Mode{BaudRate: t.baudRate})
	if err != nil {
		return nil, err
	}
	return &serialConnection{port: port}, nil
}

type serialConnection struct {
	mu        sync.Mutex
	port      serial.Port
	listeners disconnectListeners
}

func (c *serialConnection) PrimaryService(uuid string) (Service, error) {
	if !strings.EqualFold(uuid, SPPServiceUUID) {
		return nil, fmt.Errorf("%w: %s", errServiceNotFound, uuid)
	}
	return &serialService{conn: c}, nil
}

func (c *serialConnection) Services() ([]Service, error) {
	return []Service{&serialService{conn: c}}, nil
}

func (c *serialConnection) Disconnect() error {
	c.listeners.silence()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	return err
}

func (c *serialConnection) OnDisconnect(cb func()) func() {
	return c.listeners.add(cb)
}

// write fails the link on error: a serial port that rejects a write has
// usually vanished with its rfcomm binding.
func (c *serialConnection) write(data []byte) error {
	c.mu.Lock()
	port := c.port
	c.mu.Unlock()
	if port == nil {
		return fmt.Errorf("serial port closed")
	}
	if _, err := port.Write(data); err != nil {
		c.listeners.fire()
		return err
	}
	return nil
}

type serialService struct {
	conn *serialConnection
}

func (s *serialService) UUID() string { return SPPServiceUUID }

func (s *serialService) Characteristic(uuid string) (Characteristic, error) {
	if !strings.EqualFold(uuid, SPPCharacteristicUUID) {
		return nil, fmt.Errorf("%w: %s", errCharacteristicNotFound, uuid)
	}
	return &serialCharacteristic{conn: s.conn}, nil
}

func (s *serialService) Characteristics() ([]Characteristic, error) {
	return []Characteristic{&serialCharacteristic{conn: s.conn}}, nil
}

type serialCharacteristic struct {
	conn *serialConnection
}

func (c *serialCharacteristic) UUID() string { return SPPCharacteristicUUID }

func (c *serialCharacteristic) Properties() Properties {
	return PropWriteWithoutResponse
}

func (c *serialCharacteristic) WriteWithoutResponse(data []byte) error {
	return c.conn.write(data)
}

func (c *serialCharacteristic) WriteWithResponse(data []byte) error {
	return c.conn.write(data)
}
