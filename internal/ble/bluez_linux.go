//go:build linux

package ble

import (
	"context"
	"fmt"
	"sort"

	"github.com/godbus/dbus/v5"
)

const (
	bluezService       = "org.bluez"
	bluezDeviceIface   = "org.bluez.Device1"
	objectManagerIface = "org.freedesktop.DBus.ObjectManager"
)

// bluezPairedDevices lists devices BlueZ reports as paired, ordered by
// object path so repeated calls are stable.
func bluezPairedDevices(ctx context.Context) ([]Device, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	defer conn.Close()

	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := conn.Object(bluezService, "/").CallWithContext(ctx, objectManagerIface+".GetManagedObjects", 0)
	if err := call.Store(&objects); err != nil {
		return nil, fmt.Errorf("bluez managed objects: %w", err)
	}

	paths := make([]string, 0, len(objects))
	for path := range objects {
		paths = append(paths, string(path))
	}
	sort.Strings(paths)

	var devices []Device
	for _, path := range paths {
		props, ok := objects[dbus.ObjectPath(path)][bluezDeviceIface]
		if !ok {
			continue
		}
		paired, _ := props["Paired"].Value().(bool)
		if !paired {
			continue
		}
		addr, _ := props["Address"].Value().(string)
		if addr == "" {
			continue
		}
		name, _ := props["Name"].Value().(string)
		devices = append(devices, Device{ID: addr, Name: name})
	}
	return devices, nil
}
