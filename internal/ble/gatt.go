package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// GattTransport wraps tinygo-org/bluetooth. It follows the browser-style
// flow: scan, connect GATT, discover services and characteristics, write.
// On macOS device ids are CoreBluetooth UUIDs rather than MAC addresses.
type GattTransport struct {
	adapter *bluetooth.Adapter

	enableOnce sync.Once
	enableErr  error

	// scanMu guards scanning. The adapter's StopScan is not safe to call
	// twice or concurrently.
	scanMu   sync.Mutex
	scanning bool

	// mu protects connections, granted and names.
	mu          sync.Mutex
	connections map[string]*gattConnection // keyed by canonical address
	granted     []string                   // ids connected during this process, oldest first
	names       map[string]string
}

// NewGattTransport creates a transport on the default adapter.
func NewGattTransport() *GattTransport {
	return &GattTransport{
		adapter:     bluetooth.DefaultAdapter,
		connections: make(map[string]*gattConnection),
		names:       make(map[string]string),
	}
}

// Compile-time check that GattTransport implements Transport.
var _ Transport = (*GattTransport)(nil)

func (t *GattTransport) Enable() error {
	t.enableOnce.Do(func() {
		if err := t.adapter.Enable(); err != nil {
			t.enableErr = err
			return
		}

		// tinygo/bluetooth reports link loss through the adapter-level
		// connect handler with connected=false.
		t.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
			if connected {
				return
			}
			id := device.Address.String()
			t.mu.Lock()
			conn, ok := t.connections[id]
			delete(t.connections, id)
			t.mu.Unlock()
			if ok {
				slog.Debug("[BLE] link lost", "id", id)
				conn.listeners.fire()
			}
		})
	})
	return t.enableErr
}

func (t *GattTransport) Scan(ctx context.Context, found func(Device)) error {
	t.scanMu.Lock()
	if t.scanning {
		t.scanMu.Unlock()
		return errScanInProgress
	}
	t.scanning = true
	t.scanMu.Unlock()

	done := make(chan struct{})
	defer func() {
		close(done)
		t.scanMu.Lock()
		t.scanning = false
		t.scanMu.Unlock()
	}()
	go t.stopOnCancel(ctx, done)

	err := t.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		id := result.Address.String()
		name := result.LocalName()
		rssi := int(result.RSSI)
		if name != "" {
			t.mu.Lock()
			t.names[id] = name
			t.mu.Unlock()
		}
		found(Device{ID: id, Name: name, RSSI: &rssi})
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// stopOnCancel stops the adapter scan once ctx ends. The adapter rejects
// StopScan until its scan loop is running, so failed attempts are retried
// until the scan returns.
func (t *GattTransport) stopOnCancel(ctx context.Context, done <-chan struct{}) {
	select {
	case <-ctx.Done():
	case <-done:
		return
	}
	for {
		if err := t.StopScan(); err == nil {
			return
		}
		select {
		case <-done:
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// StopScan is a no-op when no scan is running or it was already stopped.
func (t *GattTransport) StopScan() error {
	t.scanMu.Lock()
	defer t.scanMu.Unlock()
	if !t.scanning {
		return nil
	}
	if err := t.adapter.StopScan(); err != nil {
		return err
	}
	t.scanning = false
	return nil
}

// BondedDevices returns the devices this process has already been granted
// a connection to, the equivalent of a browser's permitted-device list.
func (t *GattTransport) BondedDevices(_ context.Context) ([]Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	devices := make([]Device, 0, len(t.granted))
	for _, id := range t.granted {
		devices = append(devices, Device{ID: id, Name: t.names[id]})
	}
	return devices, nil
}

func (t *GattTransport) Connect(ctx context.Context, id string) (Connection, error) {
	addr, err := parseAddress(id)
	if err != nil {
		return nil, err
	}
	// The disconnect handler reports the adapter's spelling of the address.
	key := addr.String()

	// tinygo/bluetooth's Connect blocks with its own timeout. Wrap it so
	// ctx cancellation returns immediately.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-ch:
		if result.err != nil {
			return nil, result.err
		}
		conn := &gattConnection{transport: t, id: key, device: result.device}

		t.mu.Lock()
		t.connections[key] = conn
		t.grant(key)
		t.mu.Unlock()

		return conn, nil
	}
}

// grant records id as permitted (caller must hold mu).
func (t *GattTransport) grant(id string) {
	for _, g := range t.granted {
		if g == id {
			return
		}
	}
	t.granted = append(t.granted, id)
}

type gattConnection struct {
	transport *GattTransport
	id        string
	device    bluetooth.Device
	listeners disconnectListeners
}

func (c *gattConnection) PrimaryService(uuid string) (Service, error) {
	parsed, err := bluetooth.ParseUUID(uuid)
	if err != nil {
		return nil, fmt.Errorf("parse service UUID: %w", err)
	}
	svcs, err := c.device.DiscoverServices([]bluetooth.UUID{parsed})
	if err != nil {
		return nil, err
	}
	if len(svcs) == 0 {
		return nil, fmt.Errorf("%w: %s", errServiceNotFound, uuid)
	}
	return &gattService{svc: svcs[0]}, nil
}

func (c *gattConnection) Services() ([]Service, error) {
	svcs, err := c.device.DiscoverServices(nil)
	if err != nil {
		return nil, err
	}
	out := make([]Service, 0, len(svcs))
	for i := range svcs {
		out = append(out, &gattService{svc: svcs[i]})
	}
	return out, nil
}

func (c *gattConnection) Disconnect() error {
	c.transport.mu.Lock()
	delete(c.transport.connections, c.id)
	c.transport.mu.Unlock()
	c.listeners.silence()
	return c.device.Disconnect()
}

func (c *gattConnection) OnDisconnect(cb func()) func() {
	return c.listeners.add(cb)
}

type gattService struct {
	svc bluetooth.DeviceService
}

func (s *gattService) UUID() string {
	return s.svc.UUID().String()
}

func (s *gattService) Characteristic(uuid string) (Characteristic, error) {
	parsed, err := bluetooth.ParseUUID(uuid)
	if err != nil {
		return nil, fmt.Errorf("parse characteristic UUID: %w", err)
	}
	chars, err := s.svc.DiscoverCharacteristics([]bluetooth.UUID{parsed})
	if err != nil {
		return nil, err
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("%w: %s", errCharacteristicNotFound, uuid)
	}
	return &gattCharacteristic{char: chars[0]}, nil
}

func (s *gattService) Characteristics() ([]Characteristic, error) {
	chars, err := s.svc.DiscoverCharacteristics(nil)
	if err != nil {
		return nil, err
	}
	out := make([]Characteristic, 0, len(chars))
	for i := range chars {
		out = append(out, &gattCharacteristic{char: chars[i]})
	}
	return out, nil
}

// gattCharacteristic reports PropUnreported: tinygo/bluetooth does not
// expose characteristic properties on every platform.
type gattCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *gattCharacteristic) UUID() string {
	return c.char.UUID().String()
}

func (c *gattCharacteristic) Properties() Properties {
	return PropUnreported
}

func (c *gattCharacteristic) WriteWithoutResponse(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}

func (c *gattCharacteristic) WriteWithResponse(data []byte) error {
	return writeConfirmed(c.char, data)
}
