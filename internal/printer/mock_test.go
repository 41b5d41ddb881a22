package printer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/chaz8081/posprint/internal/ble"
)

// fakeChar records every write in order. Writes with index failAt fail.
type fakeChar struct {
	mu     sync.Mutex
	writes [][]byte
	failAt int
}

func newFakeChar() *fakeChar { return &fakeChar{failAt: -1} }

func (c *fakeChar) UUID() string               { return ble.DefaultCharacteristicUUIDs[0] }
func (c *fakeChar) Properties() ble.Properties { return ble.PropWriteWithoutResponse }

func (c *fakeChar) WriteWithoutResponse(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAt >= 0 && len(c.writes) == c.failAt {
		return errors.New("fake: gatt write failed")
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeChar) WriteWithResponse(data []byte) error { return c.WriteWithoutResponse(data) }

func (c *fakeChar) joined(from int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Join(c.writes[from:], nil)
}

type fakeService struct{ ch *fakeChar }

func (s *fakeService) UUID() string { return ble.DefaultServiceUUIDs[0] }

func (s *fakeService) Characteristic(uuid string) (ble.Characteristic, error) {
	if strings.EqualFold(uuid, s.ch.UUID()) {
		return s.ch, nil
	}
	return nil, errors.New("fake: characteristic not found")
}

func (s *fakeService) Characteristics() ([]ble.Characteristic, error) {
	return []ble.Characteristic{s.ch}, nil
}

type fakeConn struct {
	svc *fakeService
	cb  func()
}

func (c *fakeConn) PrimaryService(uuid string) (ble.Service, error) {
	if strings.EqualFold(uuid, c.svc.UUID()) {
		return c.svc, nil
	}
	return nil, errors.New("fake: service not found")
}

func (c *fakeConn) Services() ([]ble.Service, error) { return []ble.Service{c.svc}, nil }
func (c *fakeConn) Disconnect() error               { return nil }

func (c *fakeConn) OnDisconnect(cb func()) func() {
	c.cb = cb
	return func() { c.cb = nil }
}

// fakeTransport hands out connections that all share one characteristic.
type fakeTransport struct {
	mu         sync.Mutex
	ch         *fakeChar
	adverts    []ble.Device
	connectErr error
	connects   int
	lastID     string
}

func newFakeTransport() *fakeTransport { return &fakeTransport{ch: newFakeChar()} }

func (t *fakeTransport) Enable() error { return nil }

func (t *fakeTransport) Scan(_ context.Context, found func(ble.Device)) error {
	for _, d := range t.adverts {
		found(d)
	}
	return nil
}

func (t *fakeTransport) StopScan() error { return nil }

func (t *fakeTransport) BondedDevices(context.Context) ([]ble.Device, error) { return nil, nil }

func (t *fakeTransport) Connect(_ context.Context, id string) (ble.Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	t.lastID = id
	if t.connectErr != nil {
		return nil, t.connectErr
	}
	return &fakeConn{svc: &fakeService{ch: t.ch}}, nil
}

type fakeStore struct {
	device *ble.Device
}

func (s *fakeStore) LoadDevice() (*ble.Device, error) { return s.device, nil }

func (s *fakeStore) SaveDevice(d ble.Device) error {
	s.device = &d
	return nil
}

func (s *fakeStore) DeleteDevice() error {
	s.device = nil
	return nil
}
