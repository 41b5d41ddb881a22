//go:build linux

package ble

import (
	"context"
	"fmt"
	"sync"

	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// NativeTransport drives the HCI device directly through go-ble/ble. Unlike
// GattTransport it reports real characteristic properties, and bonded
// devices come from BlueZ.
type NativeTransport struct {
	mu         sync.Mutex
	device     *linux.Device
	scanCancel context.CancelFunc
}

// NewNativeTransport creates a transport; the HCI device is opened on Enable.
func NewNativeTransport() (*NativeTransport, error) {
	return &NativeTransport{}, nil
}

var _ Transport = (*NativeTransport)(nil)

func (t *NativeTransport) Enable() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.device != nil {
		return nil
	}
	d, err := linux.NewDevice()
	if err != nil {
		return fmt.Errorf("open HCI device: %w", err)
	}
	t.device = d
	return nil
}

func (t *NativeTransport) hci() (*linux.Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.device == nil {
		return nil, fmt.Errorf("HCI device not enabled")
	}
	return t.device, nil
}

func (t *NativeTransport) Scan(ctx context.Context, found func(Device)) error {
	d, err := t.hci()
	if err != nil {
		return err
	}

	scanCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.scanCancel = cancel
	t.mu.Unlock()
	defer func() {
		cancel()
		t.mu.Lock()
		t.scanCancel = nil
		t.mu.Unlock()
	}()

	err = d.Scan(scanCtx, true, func(adv goble.Advertisement) {
		rssi := adv.RSSI()
		found(Device{ID: adv.Addr().String(), Name: adv.LocalName(), RSSI: &rssi})
	})
	// go-ble ends a scan by returning the context error.
	if err != nil && scanCtx.Err() == nil {
		return err
	}
	return nil
}

func (t *NativeTransport) StopScan() error {
	t.mu.Lock()
	cancel := t.scanCancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (t *NativeTransport) BondedDevices(ctx context.Context) ([]Device, error) {
	return bluezPairedDevices(ctx)
}

func (t *NativeTransport) Connect(ctx context.Context, id string) (Connection, error) {
	d, err := t.hci()
	if err != nil {
		return nil, err
	}
	client, err := d.Dial(ctx, goble.NewAddr(id))
	if err != nil {
		return nil, err
	}
	conn := &nativeConnection{client: client, closed: make(chan struct{})}
	go conn.watch()
	return conn, nil
}

// Close releases the HCI device.
func (t *NativeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.device == nil {
		return nil
	}
	err := t.device.Stop()
	t.device = nil
	return err
}

type nativeConnection struct {
	client    goble.Client
	listeners disconnectListeners
	closeOnce sync.Once
	closed    chan struct{}
}

// watch turns the client's Disconnected channel into OnDisconnect callbacks.
func (c *nativeConnection) watch() {
	select {
	case <-c.client.Disconnected():
		c.listeners.fire()
	case <-c.closed:
	}
}

func (c *nativeConnection) PrimaryService(uuid string) (Service, error) {
	parsed, err := goble.Parse(uuid)
	if err != nil {
		return nil, fmt.Errorf("parse service UUID: %w", err)
	}
	svcs, err := c.client.DiscoverServices([]goble.UUID{parsed})
	if err != nil {
		return nil, err
	}
	if len(svcs) == 0 {
		return nil, fmt.Errorf("%w: %s", errServiceNotFound, uuid)
	}
	return &nativeService{client: c.client, svc: svcs[0]}, nil
}

func (c *nativeConnection) Services() ([]Service, error) {
	svcs, err := c.client.DiscoverServices(nil)
	if err != nil {
		return nil, err
	}
	out := make([]Service, 0, len(svcs))
	for _, s := range svcs {
		out = append(out, &nativeService{client: c.client, svc: s})
	}
	return out, nil
}

func (c *nativeConnection) Disconnect() error {
	c.listeners.silence()
	c.closeOnce.Do(func() { close(c.closed) })
	return c.client.CancelConnection()
}

func (c *nativeConnection) OnDisconnect(cb func()) func() {
	return c.listeners.add(cb)
}

type nativeService struct {
	client goble.Client
	svc    *goble.Service
}

func (s *nativeService) UUID() string {
	return s.svc.UUID.String()
}

func (s *nativeService) Characteristic(uuid string) (Characteristic, error) {
	parsed, err := goble.Parse(uuid)
	if err != nil {
		return nil, fmt.Errorf("parse characteristic UUID: %w", err)
	}
	chars, err := s.client.DiscoverCharacteristics([]goble.UUID{parsed}, s.svc)
	if err != nil {
		return nil, err
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("%w: %s", errCharacteristicNotFound, uuid)
	}
	return &nativeCharacteristic{client: s.client, char: chars[0]}, nil
}

func (s *nativeService) Characteristics() ([]Characteristic, error) {
	chars, err := s.client.DiscoverCharacteristics(nil, s.svc)
	if err != nil {
		return nil, err
	}
	out := make([]Characteristic, 0, len(chars))
	for _, c := range chars {
		out = append(out, &nativeCharacteristic{client: s.client, char: c})
	}
	return out, nil
}

type nativeCharacteristic struct {
	client goble.Client
	char   *goble.Characteristic
}

func (c *nativeCharacteristic) UUID() string {
	return c.char.UUID.String()
}

func (c *nativeCharacteristic) Properties() Properties {
	var p Properties
	if c.char.Property&goble.CharWrite != 0 {
		p |= PropWrite
	}
	if c.char.Property&goble.CharWriteNR != 0 {
		p |= PropWriteWithoutResponse
	}
	return p
}

func (c *nativeCharacteristic) WriteWithoutResponse(data []byte) error {
	return c.client.WriteCharacteristic(c.char, data, true)
}

func (c *nativeCharacteristic) WriteWithResponse(data []byte) error {
	return c.client.WriteCharacteristic(c.char, data, false)
}
