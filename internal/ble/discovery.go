package ble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultPrinterNameFilters are name fragments common to thermal receipt
// printers.
var DefaultPrinterNameFilters = []string{
	"print", "thermal", "pos", "escpos", "receipt",
	"mpt", "mtp", "rpp", "zj-", "xp-", "pt-", "innerprinter", "goojprt",
}

// LikelyPrinter reports whether the device name contains any of filters,
// case-insensitively. Devices without a name count as possible printers
// since many peripherals do not advertise one.
func LikelyPrinter(d Device, filters []string) bool {
	if d.Name == "" {
		return true
	}
	name := strings.ToLower(d.Name)
	for _, f := range filters {
		if f != "" && strings.Contains(name, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

// FilterPrinters keeps the devices LikelyPrinter accepts, in order.
func FilterPrinters(devices []Device, filters []string) []Device {
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		if LikelyPrinter(d, filters) {
			out = append(out, d)
		}
	}
	return out
}

// deviceList accumulates discovery results in first-seen order.
type deviceList struct {
	mu    sync.Mutex
	order []string
	byID  map[string]*Device
}

func newDeviceList() *deviceList {
	return &deviceList{byID: make(map[string]*Device)}
}

// add appends unseen devices. For known ids only the signal strength is
// refreshed, plus the name when none was seen before.
func (l *deviceList) add(d Device) {
	if d.ID == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.byID[d.ID]; ok {
		if d.RSSI != nil {
			rssi := *d.RSSI
			existing.RSSI = &rssi
		}
		if existing.Name == "" {
			existing.Name = d.Name
		}
		return
	}
	cp := d
	if d.RSSI != nil {
		rssi := *d.RSSI
		cp.RSSI = &rssi
	}
	l.byID[d.ID] = &cp
	l.order = append(l.order, d.ID)
}

func (l *deviceList) devices() []Device {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Device, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.byID[id])
	}
	return out
}

// DiscoveryOptions configures the discovery engine.
type DiscoveryOptions struct {
	NameFilters  []string
	PrintersOnly bool // apply LikelyPrinter to results
}

// Discovery produces candidate printers: bonded devices first, then
// whatever a timed scan finds. Each Scan call is a single pass.
type Discovery struct {
	transport Transport
	opts      DiscoveryOptions

	mu     sync.Mutex
	cancel context.CancelFunc
	stops  uint64 // Stop calls that ended a running scan
}

// NewDiscovery creates a discovery engine on the given transport.
func NewDiscovery(transport Transport, opts DiscoveryOptions) *Discovery {
	if opts.NameFilters == nil {
		opts.NameFilters = DefaultPrinterNameFilters
	}
	return &Discovery{transport: transport, opts: opts}
}

// Scan seeds the result with bonded devices and then scans for timeout.
// An empty result is returned as an empty slice, not an error.
func (d *Discovery) Scan(ctx context.Context, timeout time.Duration) ([]Device, error) {
	if err := d.transport.Enable(); err != nil {
		return nil, fmt.Errorf("%w: enable adapter: %w", ErrScan, err)
	}

	list := newDeviceList()

	bonded, err := d.transport.BondedDevices(ctx)
	if err != nil {
		slog.Warn("[BLE] bonded device query failed", "error", err)
	}
	for _, b := range bonded {
		list.add(b)
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	defer func() {
		cancel()
		d.mu.Lock()
		d.cancel = nil
		d.mu.Unlock()
	}()

	slog.Debug("[BLE] scanning", "timeout", timeout, "bonded", len(bonded))
	if err := d.transport.Scan(scanCtx, list.add); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScan, err)
	}

	devices := list.devices()
	if d.opts.PrintersOnly {
		devices = FilterPrinters(devices, d.opts.NameFilters)
	}
	slog.Info("[BLE] scan complete", "devices", len(devices))
	return devices, nil
}

// Stop ends an in-flight scan early. It does not touch any open session.
// The transport stops scanning when the scan context is cancelled, so Stop
// never calls the transport itself. A running ScanWithRetry does not start
// another pass after Stop.
func (d *Discovery) Stop() error {
	d.mu.Lock()
	cancel := d.cancel
	if cancel != nil {
		d.stops++
	}
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (d *Discovery) stopCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}

// RetryPolicy is the caller-level policy for scans that find nothing.
type RetryPolicy struct {
	Attempts    int           // total scan passes, at least 1
	Timeout     time.Duration // first pass
	TimeoutStep time.Duration // added to the timeout on every further pass
}

// retryTimeout returns the scan window for attempt n (0-based).
func retryTimeout(attempt int, p RetryPolicy) time.Duration {
	return p.Timeout + time.Duration(attempt)*p.TimeoutStep
}

// ScanWithRetry repeats d.Scan with a growing timeout until a pass finds
// a device or the attempts are used up. Scan errors are returned at once.
func ScanWithRetry(ctx context.Context, d *Discovery, p RetryPolicy) ([]Device, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	stops := d.stopCount()
	var devices []Device
	for attempt := 0; attempt < attempts; attempt++ {
		timeout := retryTimeout(attempt, p)
		if attempt > 0 {
			slog.Info("[BLE] no devices found, scanning again", "attempt", attempt+1, "timeout", timeout)
		}
		var err error
		devices, err = d.Scan(ctx, timeout)
		if err != nil {
			return nil, err
		}
		if len(devices) > 0 || ctx.Err() != nil || d.stopCount() != stops {
			break
		}
	}
	return devices, nil
}
