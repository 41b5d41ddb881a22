package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the printer session state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateServiceDiscovery
	StateCharacteristicReady
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateServiceDiscovery:
		return "service-discovery"
	case StateCharacteristicReady:
		return "characteristic-ready"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Status collapses the state into the three values a UI shows.
func (s State) Status() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	default:
		return "connecting"
	}
}

// DeviceStore persists the selected printer across restarts.
type DeviceStore interface {
	// LoadDevice returns nil when no printer is stored.
	LoadDevice() (*Device, error)
	SaveDevice(d Device) error
	DeleteDevice() error
}

// SessionOptions configures connection and negotiation.
type SessionOptions struct {
	ConnectTimeout      time.Duration
	ServiceUUIDs        []string // probed in order before enumeration
	CharacteristicUUIDs []string
}

// DefaultSessionOptions returns the defaults used by the CLI.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		ConnectTimeout:      10 * time.Second,
		ServiceUUIDs:        DefaultServiceUUIDs,
		CharacteristicUUIDs: DefaultCharacteristicUUIDs,
	}
}

// Session owns the link to the selected printer and the negotiated
// characteristic receipts are written to. There is at most one selected
// printer; connecting to another supersedes it.
type Session struct {
	transport Transport
	store     DeviceStore
	opts      SessionOptions

	// connectMu serializes Connect, EnsureReady and Disconnect so a reconnect
	// never races an explicit disconnect.
	connectMu sync.Mutex

	mu          sync.Mutex
	state       State
	selected    *Device
	conn        Connection
	service     Service
	char        Characteristic
	unsubscribe func()
	gen         uint64 // bumped on every link change; stale disconnect events are ignored
	names       map[string]string
}

// NewSession creates a disconnected session. Call Restore to load the
// previously selected printer.
func NewSession(transport Transport, store DeviceStore, opts SessionOptions) *Session {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.ServiceUUIDs == nil {
		opts.ServiceUUIDs = DefaultServiceUUIDs
	}
	if opts.CharacteristicUUIDs == nil {
		opts.CharacteristicUUIDs = DefaultCharacteristicUUIDs
	}
	return &Session{
		transport: transport,
		store:     store,
		opts:      opts,
		names:     make(map[string]string),
	}
}

// Restore loads the persisted printer as the selected device without
// connecting to it.
func (s *Session) Restore() (*Device, error) {
	d, err := s.store.LoadDevice()
	if err != nil {
		return nil, fmt.Errorf("ble: load selected printer: %w", err)
	}
	if d == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.selected = &cp
	if d.Name != "" {
		s.names[d.ID] = d.Name
	}
	slog.Info("[BLE] restored printer", "id", d.ID, "name", d.DisplayName())
	return d, nil
}

// Remember records advertised names so a later Connect can persist them.
func (s *Session) Remember(devices ...Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range devices {
		if d.Name != "" {
			s.names[d.ID] = d.Name
		}
	}
}

// Connect links to the device, negotiates the printer characteristic and
// persists the device as the selected printer.
func (s *Session) Connect(ctx context.Context, id string) (Device, error) {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()
	return s.connect(ctx, id)
}

func (s *Session) connect(ctx context.Context, id string) (Device, error) {
	s.dropLink()

	if err := s.transport.Enable(); err != nil {
		return Device{}, fmt.Errorf("%w: enable adapter: %w", ErrConnection, err)
	}

	s.setState(StateConnecting)
	cctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()
	conn, err := s.transport.Connect(cctx, id)
	if err != nil {
		s.setState(StateDisconnected)
		return Device{}, fmt.Errorf("%w: %s: %w", ErrConnection, id, err)
	}

	s.setState(StateServiceDiscovery)
	svc, err := negotiateService(conn, s.opts.ServiceUUIDs)
	if err != nil {
		s.abandon(conn)
		return Device{}, err
	}
	char, err := negotiateCharacteristic(svc, s.opts.CharacteristicUUIDs)
	if err != nil {
		s.abandon(conn)
		return Device{}, err
	}
	s.setState(StateCharacteristicReady)

	s.mu.Lock()
	s.gen++
	gen := s.gen
	dev := Device{ID: id, Name: s.names[id]}
	s.mu.Unlock()

	unsubscribe := conn.OnDisconnect(func() { s.linkLost(gen) })

	s.mu.Lock()
	if s.gen != gen {
		// The link dropped between negotiation and subscription.
		s.mu.Unlock()
		unsubscribe()
		return Device{}, fmt.Errorf("%w: %s: link lost during setup", ErrConnection, id)
	}
	s.conn, s.service, s.char = conn, svc, char
	s.unsubscribe = unsubscribe
	s.selected = &dev
	s.state = StateConnected
	s.mu.Unlock()

	if err := s.store.SaveDevice(dev); err != nil {
		slog.Warn("[BLE] failed to persist selected printer", "error", err)
	}
	slog.Info("[BLE] connected", "id", id, "name", dev.DisplayName(), "service", svc.UUID(), "characteristic", char.UUID())
	return dev, nil
}

// abandon closes a link that failed negotiation.
func (s *Session) abandon(conn Connection) {
	if err := conn.Disconnect(); err != nil {
		slog.Debug("[BLE] disconnect after failed negotiation", "error", err)
	}
	s.setState(StateDisconnected)
}

// linkLost handles a transport-level disconnect. The selected printer is
// kept so the next print can reconnect.
func (s *Session) linkLost(gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.conn, s.service, s.char, s.unsubscribe = nil, nil, nil, nil
	s.state = StateDisconnected
	s.mu.Unlock()
	slog.Warn("[BLE] printer disconnected")
}

// dropLink tears down the current link, keeping the selected printer.
func (s *Session) dropLink() {
	s.mu.Lock()
	conn, unsubscribe := s.conn, s.unsubscribe
	s.conn, s.service, s.char, s.unsubscribe = nil, nil, nil, nil
	s.state = StateDisconnected
	s.gen++
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			slog.Debug("[BLE] disconnect", "error", err)
		}
	}
}

// Disconnect closes the link, clears the session and forgets the
// persisted printer. It is safe to call when already disconnected.
func (s *Session) Disconnect() error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.dropLink()
	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()

	if err := s.store.DeleteDevice(); err != nil {
		return fmt.Errorf("ble: forget selected printer: %w", err)
	}
	slog.Info("[BLE] disconnected")
	return nil
}

// Invalidate drops the link after a failed write so the next print
// renegotiates. The selected printer is kept.
func (s *Session) Invalidate() {
	s.dropLink()
	slog.Warn("[BLE] session invalidated, renegotiation required")
}

// IsConnected reports whether the session has both a live link and a
// writable characteristic.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.char != nil
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Selected returns the selected printer, if any.
func (s *Session) Selected() (Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return Device{}, false
	}
	return *s.selected, true
}

// EnsureReady returns the negotiated characteristic. When the session is
// not ready but a printer is selected it makes exactly one reconnect
// attempt first.
func (s *Session) EnsureReady(ctx context.Context) (Characteristic, error) {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.Lock()
	if s.conn != nil && s.char != nil {
		ch := s.char
		s.mu.Unlock()
		return ch, nil
	}
	selected := s.selected
	s.mu.Unlock()

	if selected == nil {
		return nil, ErrNotConnected
	}

	slog.Info("[BLE] printer not ready, reconnecting", "id", selected.ID)
	if _, err := s.connect(ctx, selected.ID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.char == nil {
		return nil, ErrNotConnected
	}
	return s.char, nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
