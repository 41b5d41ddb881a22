// Command test-print is a manual test for a printer link. It connects to
// the given device, prints a sample receipt and disconnects, without
// touching the remembered printer.
//
// Usage:
//
//	go run ./cmd/test-print --device AA:BB:CC:DD:EE:FF [--transport gatt|native|serial] [--chunk 20]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chaz8081/posprint/internal/ble"
	"github.com/chaz8081/posprint/internal/printer"
	"github.com/chaz8081/posprint/internal/receipt"
	"github.com/chaz8081/posprint/internal/store"
)

func main() {
	device := flag.String("device", "", "device id (MAC address, platform UUID, or serial port)")
	kind := flag.String("transport", "gatt", "transport: gatt, native or serial")
	chunk := flag.Int("chunk", 20, "bytes per write")
	flag.Parse()

	if *device == "" {
		fmt.Println("--device is required; run 'posprint scan' to find one")
		os.Exit(2)
	}

	var transport ble.Transport
	switch *kind {
	case "native":
		t, err := ble.NewNativeTransport()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer t.Close()
		transport = t
	case "serial":
		transport = ble.NewSerialTransport(9600)
	default:
		transport = ble.NewGattTransport()
	}

	// Scratch state so the remembered printer is left alone.
	scratch := store.NewDeviceSlot(store.Open(filepath.Join(os.TempDir(), "posprint-test-print.yaml")), store.SelectedPrinterKey)
	session := ble.NewSession(transport, scratch, ble.DefaultSessionOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("Connecting to %s via %s...\n", *device, *kind)
	if _, err := session.Connect(ctx, *device); err != nil {
		fmt.Printf("Error: %v (kind: %s)\n", err, ble.Kind(err))
		return
	}
	defer session.Disconnect()

	ch, err := session.EnsureReady(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	paid, change := 50000.0, 20000.0
	r := receipt.Receipt{
		Store:         receipt.Store{Name: "posprint test", Address: "Printer self-test"},
		TransactionID: "TEST-0001",
		Timestamp:     time.Now().Format(time.RFC3339),
		Items:         []receipt.Item{{Name: "Test item", Quantity: 2, Price: 15000, Subtotal: 30000}},
		Subtotal:      30000,
		Total:         30000,
		PaymentMethod: "cash",
		AmountPaid:    &paid,
		Change:        &change,
	}
	data := receipt.Format(r, receipt.DefaultLayout())

	opts := printer.DefaultTransmitOptions()
	opts.ChunkSize = *chunk
	start := time.Now()
	if err := printer.NewTransmitter(opts).Send(ch, data, 1); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("\nDone! %d bytes in %s\n", len(data), time.Since(start).Round(time.Millisecond))
}
