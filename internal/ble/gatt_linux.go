package ble

import (
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// parseAddress accepts a MAC address in either case.
func parseAddress(id string) (bluetooth.Address, error) {
	mac, err := bluetooth.ParseMAC(strings.ToUpper(strings.TrimSpace(id)))
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("invalid device address %q: %w", id, err)
	}
	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
}

// BlueZ support in tinygo/bluetooth only writes without response.
func writeConfirmed(_ bluetooth.DeviceCharacteristic, _ []byte) error {
	return fmt.Errorf("write with response: %w", errUnsupportedTransportRequest)
}
