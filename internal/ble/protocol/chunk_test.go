package protocol

import (
	"bytes"
	"testing"
)

const testChunkSize = 20

func TestChunkBytesFitsInOne(t *testing.T) {
	chunks := ChunkBytes([]byte("hello printer"), testChunkSize)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if string(chunks[0]) != "hello printer" {
		t.Errorf("chunk[0] = %q, want %q", chunks[0], "hello printer")
	}
}

func TestChunkBytesEmpty(t *testing.T) {
	if chunks := ChunkBytes(nil, testChunkSize); chunks != nil {
		t.Errorf("ChunkBytes(nil) = %v, want nil", chunks)
	}
	if chunks := ChunkBytes([]byte{}, testChunkSize); chunks != nil {
		t.Errorf("ChunkBytes(empty) = %v, want nil", chunks)
	}
}

func TestChunkBytesZeroSize(t *testing.T) {
	if chunks := ChunkBytes([]byte("hello"), 0); chunks != nil {
		t.Errorf("ChunkBytes with size=0 should return nil, got %v", chunks)
	}
}

func TestChunkBytesExactFit(t *testing.T) {
	data := bytes.Repeat([]byte{0x1b}, testChunkSize*3)
	chunks := ChunkBytes(data, testChunkSize)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks {
		if len(c) != testChunkSize {
			t.Errorf("chunk[%d] len=%d, want %d", i, len(c), testChunkSize)
		}
	}
}

func TestChunkBytesOneByteOver(t *testing.T) {
	data := bytes.Repeat([]byte("a"), testChunkSize+1)
	chunks := ChunkBytes(data, testChunkSize)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if len(chunks[1]) != 1 {
		t.Errorf("last chunk len=%d, want 1", len(chunks[1]))
	}
}

func TestChunkBytesReassemblesAnyLength(t *testing.T) {
	for n := 1; n <= 5*testChunkSize+3; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i * 7)
		}
		for _, size := range []int{1, 3, testChunkSize, 64} {
			chunks := ChunkBytes(data, size)
			want := (n + size - 1) / size
			if len(chunks) != want {
				t.Fatalf("n=%d size=%d: got %d chunks, want %d", n, size, len(chunks), want)
			}
			for i, c := range chunks {
				if len(c) > size || len(c) == 0 {
					t.Fatalf("n=%d size=%d: chunk[%d] len=%d", n, size, i, len(c))
				}
			}
			if got := bytes.Join(chunks, nil); !bytes.Equal(got, data) {
				t.Fatalf("n=%d size=%d: reassembled bytes differ", n, size)
			}
		}
	}
}

func TestChunkBytesAppendDoesNotClobber(t *testing.T) {
	data := []byte("abcdefgh")
	chunks := ChunkBytes(data, 4)
	_ = append(chunks[0], 'X')
	if string(chunks[1]) != "efgh" {
		t.Errorf("chunk[1] = %q after append to chunk[0], want %q", chunks[1], "efgh")
	}
}
