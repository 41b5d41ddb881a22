//go:build !linux

package ble

import "fmt"

// NativeTransport is only available on linux.
type NativeTransport struct {
	Transport
}

// NewNativeTransport always fails outside linux; use the gatt transport.
func NewNativeTransport() (*NativeTransport, error) {
	return nil, fmt.Errorf("ble: native transport requires linux: %w", errUnsupportedTransportRequest)
}

// Close is a no-op.
func (t *NativeTransport) Close() error { return nil }
