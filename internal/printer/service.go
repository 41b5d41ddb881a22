package printer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/posprint/internal/ble"
	"github.com/chaz8081/posprint/internal/receipt"
)

// ConnectionState is what the UI shows for the printer.
type ConnectionState struct {
	Device      *ble.Device `json:"device"`
	IsConnected bool        `json:"is_connected"`
	Status      string      `json:"status"`
}

// Options configures a Service.
type Options struct {
	Layout      receipt.Layout
	Transmit    TransmitOptions
	Retry       ble.RetryPolicy
	NameFilters []string
	Copies      int // used when a print request asks for fewer than one copy
}

// DefaultOptions returns the options the CLI starts from.
func DefaultOptions() Options {
	return Options{
		Layout:      receipt.DefaultLayout(),
		Transmit:    DefaultTransmitOptions(),
		Retry:       ble.RetryPolicy{Attempts: 3, Timeout: 5 * time.Second, TimeoutStep: 2 * time.Second},
		NameFilters: ble.DefaultPrinterNameFilters,
		Copies:      1,
	}
}

// Service ties discovery, the session and the transmitter together. Print
// jobs are serialized; a second PrintReceipt waits for the first.
type Service struct {
	session   *ble.Session
	discovery *ble.Discovery
	tx        *Transmitter
	opts      Options

	printMu sync.Mutex
}

// NewService creates a Service.
func NewService(session *ble.Session, discovery *ble.Discovery, opts Options) *Service {
	if opts.Copies < 1 {
		opts.Copies = 1
	}
	if opts.NameFilters == nil {
		opts.NameFilters = ble.DefaultPrinterNameFilters
	}
	return &Service{
		session:   session,
		discovery: discovery,
		tx:        NewTransmitter(opts.Transmit),
		opts:      opts,
	}
}

// ScanForDevices returns bonded and nearby devices. A positive timeout
// replaces the configured first-pass window.
func (s *Service) ScanForDevices(ctx context.Context, timeout time.Duration) ([]ble.Device, error) {
	p := s.opts.Retry
	if timeout > 0 {
		p.Timeout = timeout
	}
	devices, err := ble.ScanWithRetry(ctx, s.discovery, p)
	if err != nil {
		return nil, err
	}
	s.session.Remember(devices...)
	return devices, nil
}

// ScanForPrinters is ScanForDevices narrowed to names that look like
// receipt printers.
func (s *Service) ScanForPrinters(ctx context.Context, timeout time.Duration) ([]ble.Device, error) {
	devices, err := s.ScanForDevices(ctx, timeout)
	if err != nil {
		return nil, err
	}
	return ble.FilterPrinters(devices, s.opts.NameFilters), nil
}

// StopScan ends an in-flight scan.
func (s *Service) StopScan() error {
	return s.discovery.Stop()
}

// ConnectToDevice connects to id and makes it the selected printer.
func (s *Service) ConnectToDevice(ctx context.Context, id string) (ble.Device, error) {
	return s.session.Connect(ctx, id)
}

// DisconnectFromDevice closes the link and forgets the selected printer.
func (s *Service) DisconnectFromDevice() error {
	return s.session.Disconnect()
}

// ConnectionState reports the selected printer and whether it is ready.
func (s *Service) ConnectionState() ConnectionState {
	st := ConnectionState{
		IsConnected: s.session.IsConnected(),
		Status:      s.session.State().Status(),
	}
	if d, ok := s.session.Selected(); ok {
		st.Device = &d
	}
	return st
}

// PrintReceipt formats r and sends it copies times. When the session is not
// ready it reconnects once to the selected printer first; if that fails
// nothing is transmitted. A failed write invalidates the session.
func (s *Service) PrintReceipt(ctx context.Context, r receipt.Receipt, copies int) error {
	s.printMu.Lock()
	defer s.printMu.Unlock()

	if copies < 1 {
		copies = s.opts.Copies
	}

	ch, err := s.session.EnsureReady(ctx)
	if err != nil {
		slog.Warn("[PRINT] printer not ready", "error", err)
		return err
	}

	data := receipt.Format(r, s.opts.Layout)
	slog.Info("[PRINT] printing receipt", "transaction", r.TransactionID, "bytes", len(data), "copies", copies)
	if err := s.tx.Send(ch, data, copies); err != nil {
		s.session.Invalidate()
		return err
	}
	slog.Info("[PRINT] receipt printed", "transaction", r.TransactionID)
	return nil
}
