// Package store is a small string-keyed record store backed by one YAML
// file. It remembers the selected printer between runs.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/posprint/internal/ble"
)

// SelectedPrinterKey is the record holding the bonded printer.
const SelectedPrinterKey = "printer.selected"

// File stores records as top-level keys of a YAML document.
type File struct {
	path string
	mu   sync.Mutex
}

// Open returns a store for path. The file is created on first write.
func Open(path string) *File {
	return &File{path: path}
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// Get decodes the record at key into out. It reports false when the key
// is absent.
func (f *File) Get(key string, out any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load()
	if err != nil {
		return false, err
	}
	node, ok := records[key]
	if !ok {
		return false, nil
	}
	if err := node.Decode(out); err != nil {
		return false, fmt.Errorf("store: decoding %q: %w", key, err)
	}
	return true, nil
}

// Put replaces the record at key.
func (f *File) Put(key string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load()
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return fmt.Errorf("store: encoding %q: %w", key, err)
	}
	records[key] = node
	return f.save(records)
}

// Delete removes the record at key. Deleting a missing key is not an error.
func (f *File) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := records[key]; !ok {
		return nil
	}
	delete(records, key)
	return f.save(records)
}

// load decodes the document into node values. Pointer values would be
// left unset by the decoder.
func (f *File) load() (map[string]yaml.Node, error) {
	records := make(map[string]yaml.Node)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: reading %s: %w", f.path, err)
	}
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("store: parsing %s: %w", f.path, err)
	}
	if records == nil {
		records = make(map[string]yaml.Node)
	}
	return records, nil
}

// save writes through a temp file so a crash never leaves a torn record.
func (f *File) save(records map[string]yaml.Node) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("store: creating directory: %w", err)
	}
	data, err := yaml.Marshal(records)
	if err != nil {
		return fmt.Errorf("store: encoding: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("store: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("store: replacing %s: %w", f.path, err)
	}
	return nil
}

// DeviceSlot keeps one ble.Device under a fixed key.
type DeviceSlot struct {
	file *File
	key  string
}

// NewDeviceSlot returns a ble.DeviceStore backed by f.
func NewDeviceSlot(f *File, key string) *DeviceSlot {
	return &DeviceSlot{file: f, key: key}
}

var _ ble.DeviceStore = (*DeviceSlot)(nil)

func (s *DeviceSlot) LoadDevice() (*ble.Device, error) {
	var d ble.Device
	ok, err := s.file.Get(s.key, &d)
	if err != nil || !ok {
		return nil, err
	}
	if d.ID == "" {
		return nil, nil
	}
	return &d, nil
}

func (s *DeviceSlot) SaveDevice(d ble.Device) error {
	return s.file.Put(s.key, ble.Device{ID: d.ID, Name: d.Name})
}

func (s *DeviceSlot) DeleteDevice() error {
	return s.file.Delete(s.key)
}
