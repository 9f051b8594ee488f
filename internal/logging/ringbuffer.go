package logging

import (
	"os"
	"sync"
)

// RingBuffer keeps the last N bytes written to it. The log handler tees into
// it so a crash dump (SIGUSR1) has recent context even after rotation.
type RingBuffer struct {
	mu   sync.Mutex
	buf  []byte
	next int
	full bool
}

// NewRingBuffer creates a ring buffer holding size bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 4 * 1024 * 1024
	}
	return &RingBuffer{buf: make([]byte, size)}
}

// Write implements io.Writer. It never fails; old bytes are overwritten.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	size := len(rb.buf)
	if n >= size {
		copy(rb.buf, p[n-size:])
		rb.next = 0
		rb.full = true
		return n, nil
	}

	tail := copy(rb.buf[rb.next:], p)
	if tail < n {
		copy(rb.buf, p[tail:])
		rb.full = true
	}
	rb.next = (rb.next + n) % size
	if rb.next == 0 && n > 0 {
		rb.full = true
	}
	return n, nil
}

// Bytes returns a copy of the contents, oldest first.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if !rb.full {
		return append([]byte(nil), rb.buf[:rb.next]...)
	}
	out := make([]byte, 0, len(rb.buf))
	out = append(out, rb.buf[rb.next:]...)
	return append(out, rb.buf[:rb.next]...)
}

// Len reports how many bytes are currently held.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.full {
		return len(rb.buf)
	}
	return rb.next
}

// DumpToFile writes the contents to path, oldest first.
func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o600)
}
