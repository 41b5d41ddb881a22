// Command posprint drives a Bluetooth receipt printer: it scans for and
// pairs with printers, prints receipts given as JSON, and can serve the
// same operations to a point-of-sale UI over a local websocket.
//
// Usage:
//
//	posprint [--config path] scan [--timeout 5s] [--printers]
//	posprint [--config path] connect <device-id>
//	posprint [--config path] disconnect
//	posprint [--config path] status
//	posprint [--config path] print [--copies n] <receipt.json>
//	posprint [--config path] serve
//	posprint init-config
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chaz8081/posprint/internal/agent"
	"github.com/chaz8081/posprint/internal/ble"
	"github.com/chaz8081/posprint/internal/config"
	"github.com/chaz8081/posprint/internal/printer"
	"github.com/chaz8081/posprint/internal/receipt"
	"github.com/chaz8081/posprint/internal/store"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/posprint/config.yaml)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	if cmd == "init-config" {
		path, err := config.WriteDefault()
		if err != nil {
			fatal("config", err)
		}
		if path == "" {
			fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
			return
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("config", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal("config validation", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg)
	if err != nil {
		fatal("startup", err)
	}
	defer app.close()

	switch cmd {
	case "scan":
		err = app.scan(ctx, args)
	case "connect":
		err = app.connect(ctx, args)
	case "disconnect":
		err = app.service.DisconnectFromDevice()
		if err == nil {
			fmt.Println("Printer disconnected and forgotten")
		}
	case "status":
		err = app.status()
	case "print":
		err = app.print(ctx, args)
	case "serve":
		printBanner(cfg)
		err = app.serve(ctx)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		app.close()
		fatal(cmd, err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: posprint [--config path] <command> [args]

Commands:
  scan [--timeout 5s] [--printers]   list bonded and nearby devices
  connect <device-id>                connect and remember a printer
  disconnect                         disconnect and forget the printer
  status                             show the selected printer
  print [--copies n] <receipt.json>  print a receipt
  serve                              serve the websocket agent
  init-config                        write the default config file
`)
	flag.PrintDefaults()
}

// fatal logs err with its UI kind and exits.
func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	if kind := ble.Kind(err); kind != "unknown" {
		fmt.Fprintf(os.Stderr, "  (kind: %s)\n", kind)
	}
	os.Exit(1)
}

// app holds the wired printer stack.
type app struct {
	cfg     *config.Config
	closer  func() error
	service *printer.Service
}

func newApp(cfg *config.Config) (*app, error) {
	transport, closer, err := newTransport(cfg.Transport)
	if err != nil {
		return nil, err
	}

	slot := store.NewDeviceSlot(store.Open(cfg.StatePath), store.SelectedPrinterKey)
	session := ble.NewSession(transport, slot, ble.SessionOptions{
		ConnectTimeout:      cfg.Transport.ConnectTimeout,
		ServiceUUIDs:        orNil(cfg.Negotiation.Services),
		CharacteristicUUIDs: orNil(cfg.Negotiation.Characteristics),
	})
	if _, err := session.Restore(); err != nil {
		slog.Warn("[BLE] could not restore selected printer", "error", err)
	}

	discovery := ble.NewDiscovery(transport, ble.DiscoveryOptions{
		NameFilters:  orNil(cfg.Scan.NameFilters),
		PrintersOnly: cfg.Scan.PrintersOnly,
	})

	opts := printer.DefaultOptions()
	opts.Retry = ble.RetryPolicy{
		Attempts:    cfg.Scan.Attempts,
		Timeout:     cfg.Scan.Timeout,
		TimeoutStep: cfg.Scan.TimeoutStep,
	}
	opts.NameFilters = orNil(cfg.Scan.NameFilters)
	opts.Copies = cfg.Print.Copies
	opts.Transmit = printer.TransmitOptions{
		ChunkSize:  cfg.Print.ChunkSize,
		InitDelay:  cfg.Print.InitDelay,
		ChunkDelay: cfg.Print.ChunkDelay,
		CopyDelay:  cfg.Print.CopyDelay,
	}
	opts.Layout.Columns = cfg.Print.Columns
	opts.Layout.CodePage = cfg.Print.CodePage
	opts.Layout.ThousandsSep = cfg.Print.ThousandsSeparator
	opts.Layout.Footer = cfg.Print.Footer
	opts.Layout.FeedLines = cfg.Print.FeedLines
	if cfg.Print.Columns > 32 {
		// 80 mm paper: 48 columns across 576 dots.
		opts.Layout.PrintWidthDots = cfg.Print.Columns * 12
	}

	return &app{
		cfg:     cfg,
		closer:  closer,
		service: printer.NewService(session, discovery, opts),
	}, nil
}

// newTransport builds the configured Bluetooth stack. The returned func
// releases it.
func newTransport(cfg config.TransportConfig) (ble.Transport, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Kind {
	case "native":
		t, err := ble.NewNativeTransport()
		if err != nil {
			return nil, nil, err
		}
		return t, t.Close, nil
	case "serial":
		return ble.NewSerialTransport(cfg.BaudRate), noop, nil
	default:
		return ble.NewGattTransport(), noop, nil
	}
}

func (a *app) close() {
	if a.closer == nil {
		return
	}
	if err := a.closer(); err != nil {
		slog.Debug("[BLE] closing transport", "error", err)
	}
	a.closer = nil
}

func (a *app) scan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	timeout := fs.Duration("timeout", a.cfg.Scan.Timeout, "scan window for the first pass")
	printersOnly := fs.Bool("printers", a.cfg.Scan.PrintersOnly, "only list devices that look like printers")
	_ = fs.Parse(args)

	fmt.Printf("Scanning for %s...\n", *timeout)
	var devices []ble.Device
	var err error
	if *printersOnly {
		devices, err = a.service.ScanForPrinters(ctx, *timeout)
	} else {
		devices, err = a.service.ScanForDevices(ctx, *timeout)
	}
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No devices found.")
		return nil
	}
	for i, d := range devices {
		fmt.Printf("  %d. %s\n", i+1, d)
	}
	return nil
}

func (a *app) connect(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: posprint connect <device-id>")
	}
	d, err := a.service.ConnectToDevice(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Connected to %s\n", d)
	return nil
}

func (a *app) status() error {
	st := a.service.ConnectionState()
	if st.Device == nil {
		fmt.Println("No printer selected.")
		return nil
	}
	fmt.Printf("Printer: %s\n", st.Device)
	fmt.Printf("Status:  %s\n", st.Status)
	return nil
}

func (a *app) print(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("print", flag.ExitOnError)
	copies := fs.Int("copies", a.cfg.Print.Copies, "number of copies")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: posprint print [--copies n] <receipt.json>")
	}

	r, err := readReceipt(fs.Arg(0))
	if err != nil {
		return err
	}
	start := time.Now()
	if err := a.service.PrintReceipt(ctx, r, *copies); err != nil {
		return err
	}
	fmt.Printf("Printed %d cop%s in %s\n", *copies, plural(*copies, "y", "ies"), time.Since(start).Round(time.Millisecond))
	return nil
}

func (a *app) serve(ctx context.Context) error {
	ag := agent.New(a.service, agent.Options{AllowedOrigins: a.cfg.Agent.AllowedOrigins})
	fmt.Printf("Agent ready on ws://%s/ws. Ctrl+C to quit.\n", a.cfg.Agent.Listen)
	err := ag.ListenAndServe(ctx, a.cfg.Agent.Listen)
	slog.Info("[AGENT] stopped")
	return err
}

func readReceipt(path string) (receipt.Receipt, error) {
	var r receipt.Receipt
	data, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("reading receipt: %w", err)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("parsing receipt %s: %w", path, err)
	}
	return r, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		slog.Debug("config loaded", "path", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	slog.Debug("no config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== posprint ===")
	fmt.Printf("  Transport: %s\n", cfg.Transport.Kind)
	fmt.Printf("  State:     %s\n", cfg.StatePath)
	fmt.Printf("  Paper:     %d columns, %s\n", cfg.Print.Columns, strings.ToUpper(cfg.Print.CodePage))
	fmt.Printf("  Chunks:    %d bytes every %s\n", cfg.Print.ChunkSize, cfg.Print.ChunkDelay)
	fmt.Printf("  Agent:     %s\n", cfg.Agent.Listen)
	fmt.Printf("  Log:       %s\n", cfg.LogLevel)
	fmt.Println("================")
}

func orNil(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
