package ble

import (
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// parseAddress reads a CoreBluetooth peripheral UUID.
func parseAddress(id string) (bluetooth.Address, error) {
	uuid, err := bluetooth.ParseUUID(strings.TrimSpace(id))
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("invalid device id %q: %w", id, err)
	}
	return bluetooth.Address{UUID: uuid}, nil
}

func writeConfirmed(c bluetooth.DeviceCharacteristic, data []byte) error {
	_, err := c.Write(data)
	return err
}
