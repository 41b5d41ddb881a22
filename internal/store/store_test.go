package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chaz8081/posprint/internal/ble"
)

func TestDeviceSlotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "state.yaml")
	slot := NewDeviceSlot(Open(path), SelectedPrinterKey)

	rssi := -60
	if err := slot.SaveDevice(ble.Device{ID: "AA:BB:CC:DD:EE:FF", Name: "MPT-II", RSSI: &rssi}); err != nil {
		t.Fatalf("SaveDevice() error = %v", err)
	}

	got, err := slot.LoadDevice()
	if err != nil {
		t.Fatalf("LoadDevice() error = %v", err)
	}
	if got == nil {
		t.Fatal("LoadDevice() = nil, want stored device")
	}
	if got.ID != "AA:BB:CC:DD:EE:FF" || got.Name != "MPT-II" {
		t.Errorf("LoadDevice() = %+v, want id and name restored", got)
	}
	if got.RSSI != nil {
		t.Errorf("RSSI should not be persisted, got %d", *got.RSSI)
	}
}

func TestDeviceSlotMissingFile(t *testing.T) {
	slot := NewDeviceSlot(Open(filepath.Join(t.TempDir(), "none.yaml")), SelectedPrinterKey)
	got, err := slot.LoadDevice()
	if err != nil {
		t.Fatalf("LoadDevice() error = %v", err)
	}
	if got != nil {
		t.Errorf("LoadDevice() = %+v, want nil", got)
	}
}

func TestDeviceSlotDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	slot := NewDeviceSlot(Open(path), SelectedPrinterKey)

	if err := slot.SaveDevice(ble.Device{ID: "dev-1", Name: "Printer"}); err != nil {
		t.Fatalf("SaveDevice() error = %v", err)
	}
	if err := slot.DeleteDevice(); err != nil {
		t.Fatalf("DeleteDevice() error = %v", err)
	}
	got, err := slot.LoadDevice()
	if err != nil {
		t.Fatalf("LoadDevice() error = %v", err)
	}
	if got != nil {
		t.Errorf("LoadDevice() after delete = %+v, want nil", got)
	}

	// Deleting again is a no-op.
	if err := slot.DeleteDevice(); err != nil {
		t.Errorf("second DeleteDevice() error = %v", err)
	}
}

func TestSaveOverwritesSingleSlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	slot := NewDeviceSlot(Open(path), SelectedPrinterKey)

	_ = slot.SaveDevice(ble.Device{ID: "first", Name: "One"})
	_ = slot.SaveDevice(ble.Device{ID: "second", Name: "Two"})

	got, err := slot.LoadDevice()
	if err != nil {
		t.Fatalf("LoadDevice() error = %v", err)
	}
	if got == nil || got.ID != "second" {
		t.Errorf("LoadDevice() = %+v, want second device", got)
	}
}

func TestOtherKeysSurvive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	f := Open(path)

	if err := f.Put("ui.theme", "dark"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	slot := NewDeviceSlot(f, SelectedPrinterKey)
	_ = slot.SaveDevice(ble.Device{ID: "dev-1"})
	_ = slot.DeleteDevice()

	var theme string
	ok, err := f.Get("ui.theme", &theme)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v; want present", ok, err)
	}
	if theme != "dark" {
		t.Errorf("theme = %q, want %q", theme, "dark")
	}
}

func TestCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	if err := os.WriteFile(path, []byte("- just\n- a list\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewDeviceSlot(Open(path), SelectedPrinterKey).LoadDevice()
	if err == nil {
		t.Fatal("LoadDevice() should fail on corrupt file")
	}
	if !strings.Contains(err.Error(), "parsing") {
		t.Errorf("error = %v, want parse error", err)
	}
}
