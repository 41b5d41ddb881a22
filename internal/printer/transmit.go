// Package printer sends formatted receipts to the selected printer and is
// the entry point UI layers use for scanning, connecting and printing.
package printer

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaz8081/posprint/internal/ble"
	"github.com/chaz8081/posprint/internal/ble/protocol"
	"github.com/chaz8081/posprint/internal/receipt"
)

// ErrPrintTransmission is matched by every *TransmissionError.
var ErrPrintTransmission = errors.New("print: transmission failed")

// TransmissionError reports how far a print job got before a write failed.
type TransmissionError struct {
	Sent  int // content chunks written in the failed copy
	Total int // content chunks per copy
	Copy  int // 1-based copy that failed
	Err   error
}

func (e *TransmissionError) Error() string {
	return fmt.Sprintf("print: copy %d failed after %d/%d chunks: %v", e.Copy, e.Sent, e.Total, e.Err)
}

func (e *TransmissionError) Unwrap() error { return e.Err }

func (e *TransmissionError) Is(target error) bool { return target == ErrPrintTransmission }

// Kind identifies the error for UI layers, see ble.Kind.
func (e *TransmissionError) Kind() string { return "transmission" }

// TransmitOptions holds the timing tuned for slow thermal printer firmware.
type TransmitOptions struct {
	ChunkSize  int
	InitDelay  time.Duration // after the init sequence
	ChunkDelay time.Duration // between content chunks
	CopyDelay  time.Duration // between copies
}

// DefaultTransmitOptions returns timings that work for common 58 mm
// printers.
func DefaultTransmitOptions() TransmitOptions {
	return TransmitOptions{
		ChunkSize:  protocol.DefaultChunkSize,
		InitDelay:  100 * time.Millisecond,
		ChunkDelay: 20 * time.Millisecond,
		CopyDelay:  time.Second,
	}
}

// Transmitter streams bytes to a characteristic. Writes are strictly
// sequential; there is no cancellation once a copy has started.
type Transmitter struct {
	opts  TransmitOptions
	sleep func(time.Duration)
}

// NewTransmitter creates a Transmitter. A non-positive chunk size falls back
// to protocol.DefaultChunkSize.
func NewTransmitter(opts TransmitOptions) *Transmitter {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = protocol.DefaultChunkSize
	}
	return &Transmitter{opts: opts, sleep: time.Sleep}
}

// Send writes copies of data to ch. Each copy starts with the printer init
// sequence. The first failed write aborts the job with a *TransmissionError.
func (t *Transmitter) Send(ch ble.Characteristic, data []byte, copies int) error {
	if copies < 1 {
		copies = 1
	}
	chunks := protocol.ChunkBytes(data, t.opts.ChunkSize)

	for c := 1; c <= copies; c++ {
		if c > 1 {
			t.sleep(t.opts.CopyDelay)
		}
		if err := ble.Write(ch, receipt.CmdReset); err != nil {
			return &TransmissionError{Sent: 0, Total: len(chunks), Copy: c, Err: err}
		}
		t.sleep(t.opts.InitDelay)

		for i, chunk := range chunks {
			if err := ble.Write(ch, chunk); err != nil {
				slog.Error("[PRINT] chunk write failed", "copy", c, "chunk", i+1, "total", len(chunks), "error", err)
				return &TransmissionError{Sent: i, Total: len(chunks), Copy: c, Err: err}
			}
			if i < len(chunks)-1 {
				t.sleep(t.opts.ChunkDelay)
			}
		}
		slog.Debug("[PRINT] copy sent", "copy", c, "of", copies, "bytes", len(data), "chunks", len(chunks))
	}
	return nil
}
