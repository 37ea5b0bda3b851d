// Package arena implements the in-memory region that backs a caching stream.
//
// A Buffer is a contiguous byte slice that only grows at its end, plus a read
// cursor that may be placed anywhere inside the filled region. It supports
// nothing else: no writes in place, no truncation.
package arena

import (
	"errors"
	"io"
)

// ErrOutOfRange is returned when the cursor is moved past the filled region.
var ErrOutOfRange = errors.New("arena: offset out of range")

// Buffer is a growable append-only byte region with an independent cursor.
// The zero value is an empty buffer ready to use.
type Buffer struct {
	buf []byte
	pos int
}

// New returns an empty Buffer with room for capacity bytes.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{buf: make([]byte, 0, capacity)}
}

// Len returns the number of filled bytes.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// Pos returns the cursor offset.
func (b *Buffer) Pos() int {
	return b.pos
}

// Reserve makes room for n more bytes and returns the unfilled slice that
// follows the filled region. Bytes written there become visible only after
// Commit. A later Reserve or Append invalidates the returned slice.
func (b *Buffer) Reserve(n int) []byte {
	if n <= 0 {
		return nil
	}
	need := len(b.buf) + n
	if need > cap(b.buf) {
		newCap := 2 * cap(b.buf)
		if newCap < need {
			newCap = need
		}
		grown := make([]byte, len(b.buf), newCap)
		copy(grown, b.buf)
		b.buf = grown
	}
	return b.buf[len(b.buf):need]
}

// Commit extends the filled region by n bytes previously written into the
// slice returned by Reserve.
func (b *Buffer) Commit(n int) {
	if n <= 0 {
		return
	}
	if len(b.buf)+n > cap(b.buf) {
		panic("arena: commit exceeds reserved space")
	}
	b.buf = b.buf[:len(b.buf)+n]
}

// Append copies p to the end of the filled region. The cursor does not move.
func (b *Buffer) Append(p []byte) {
	copy(b.Reserve(len(p)), p)
	b.Commit(len(p))
}

// SeekTo moves the cursor to off, which must lie within [0, Len()].
func (b *Buffer) SeekTo(off int) error {
	if off < 0 || off > len(b.buf) {
		return ErrOutOfRange
	}
	b.pos = off
	return nil
}

// Read copies bytes from the cursor into p and advances the cursor.
// It returns io.EOF when the cursor is at the end of the filled region.
func (b *Buffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if b.pos >= len(b.buf) {
		return 0, io.EOF
	}
	n := copy(p, b.buf[b.pos:])
	b.pos += n
	return n, nil
}

// ReadAt copies bytes at off into p without touching the cursor.
// It follows io.ReaderAt: a short count is accompanied by io.EOF.
func (b *Buffer) ReadAt(p []byte, off int) (int, error) {
	if off < 0 {
		return 0, ErrOutOfRange
	}
	if off >= len(b.buf) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, b.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Release drops the backing memory. The buffer is empty afterwards.
func (b *Buffer) Release() {
	b.buf = nil
	b.pos = 0
}
