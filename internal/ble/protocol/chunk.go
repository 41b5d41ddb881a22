// Package protocol holds the framing rules for writing to a printer
// characteristic.
package protocol

// DefaultChunkSize keeps each write inside the 20-byte ATT payload of the
// default 23-byte MTU, which every BLE printer accepts.
const DefaultChunkSize = 20

// ChunkBytes splits data into consecutive pieces of at most size bytes.
// The last piece holds the remainder. Concatenating the pieces in order
// reproduces data exactly. Returns nil for empty data or size <= 0.
func ChunkBytes(data []byte, size int) [][]byte {
	if len(data) == 0 || size <= 0 {
		return nil
	}

	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for len(data) > 0 {
		n := size
		if len(data) < n {
			n = len(data)
		}
		// Full slice expression so appending to a chunk never clobbers
		// the next one.
		chunks = append(chunks, data[:n:n])
		data = data[n:]
	}
	return chunks
}
