package ble

import "errors"

// Error kinds surfaced to the UI. Transport errors are wrapped in one of
// these before they leave the session or discovery boundary.
var (
	ErrScan                        = errors.New("ble: scan failed")
	ErrConnection                  = errors.New("ble: connection failed")
	ErrNoCompatibleService         = errors.New("ble: no compatible printer service")
	ErrNoCompatibleCharacteristic  = errors.New("ble: no writable printer characteristic")
	ErrWrite                       = errors.New("ble: write failed")
	ErrNotConnected                = errors.New("ble: printer not connected")
	errCharacteristicNotFound      = errors.New("characteristic not found")
	errServiceNotFound             = errors.New("service not found")
	errUnsupportedTransportRequest = errors.New("not supported by this transport")
	errScanInProgress              = errors.New("scan already in progress")
)

// Kind maps err to a stable identifier the UI can switch on. Errors that
// carry their own Kind method take precedence. It returns "" for nil and
// "unknown" for errors outside the taxonomy.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		return k.Kind()
	}
	switch {
	case errors.Is(err, ErrScan):
		return "scan"
	case errors.Is(err, ErrNoCompatibleService):
		return "unsupported_service"
	case errors.Is(err, ErrNoCompatibleCharacteristic):
		return "unsupported_characteristic"
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, ErrWrite):
		return "write"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	default:
		return "unknown"
	}
}
