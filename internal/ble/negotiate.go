package ble

import (
	"fmt"
	"log/slog"
)

// Printer services and write characteristics seen on common thermal
// printers, most widespread first.
var (
	DefaultServiceUUIDs = []string{
		"000018f0-0000-1000-8000-00805f9b34fb", // generic Chinese POS modules
		"e7810a71-73ae-499d-8c15-faa9aef0c3f2", // BT-B36 / MTP family
		"49535343-fe7d-4ae5-8fa9-9fafd205e455", // ISSC transparent UART
		"0000ff00-0000-1000-8000-00805f9b34fb",
		"0000ffe0-0000-1000-8000-00805f9b34fb", // HM-10 style UART
		"6e400001-b5a3-f393-e0a9-e50e24dcca9e", // Nordic UART
		SPPServiceUUID,
	}
	DefaultCharacteristicUUIDs = []string{
		"00002af1-0000-1000-8000-00805f9b34fb",
		"bef8d6c9-9c21-4c9e-b632-bd58c1009f9f",
		"49535343-8841-43f4-a8d4-ecbe34729bb3",
		"0000ff02-0000-1000-8000-00805f9b34fb",
		"0000ffe1-0000-1000-8000-00805f9b34fb",
		"6e400002-b5a3-f393-e0a9-e50e24dcca9e",
		SPPCharacteristicUUID,
	}
)

// probe returns the first candidate try resolves.
func probe[T any](candidates []string, try func(id string) (T, bool)) (T, bool) {
	for _, id := range candidates {
		if v, ok := try(id); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// negotiateService resolves the printer service: the first known UUID the
// device exposes, else the first service it lists. A failed enumeration is
// a link problem, not an incompatible device.
func negotiateService(conn Connection, known []string) (Service, error) {
	svc, ok := probe(known, func(id string) (Service, bool) {
		svc, err := conn.PrimaryService(id)
		if err != nil {
			slog.Debug("[BLE] service probe miss", "uuid", id, "error", err)
			return nil, false
		}
		return svc, true
	})
	if ok {
		slog.Debug("[BLE] known printer service", "uuid", svc.UUID())
		return svc, nil
	}

	all, err := conn.Services()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate services: %w", ErrConnection, err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: device exposes no services", ErrNoCompatibleService)
	}
	slog.Info("[BLE] no known printer service, using first exposed", "uuid", all[0].UUID())
	return all[0], nil
}

// negotiateCharacteristic resolves the characteristic receipts are written
// to: the first known writable UUID, else the first writable one listed.
func negotiateCharacteristic(svc Service, known []string) (Characteristic, error) {
	ch, ok := probe(known, func(id string) (Characteristic, bool) {
		ch, err := svc.Characteristic(id)
		if err != nil {
			slog.Debug("[BLE] characteristic probe miss", "uuid", id, "error", err)
			return nil, false
		}
		if !ch.Properties().Writable() {
			slog.Debug("[BLE] known characteristic not writable", "uuid", id)
			return nil, false
		}
		return ch, true
	})
	if ok {
		return ch, nil
	}

	all, err := svc.Characteristics()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate characteristics of %s: %w", ErrNoCompatibleCharacteristic, svc.UUID(), err)
	}
	for _, c := range all {
		if c.Properties().Writable() {
			slog.Info("[BLE] no known printer characteristic, using first writable", "uuid", c.UUID(), "properties", c.Properties())
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: service %s", ErrNoCompatibleCharacteristic, svc.UUID())
}
