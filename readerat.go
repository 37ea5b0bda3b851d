package packstream

import (
	"fmt"
	"io"
	"sync"
)

// Interface compliance.
var (
	_ io.ReaderAt = (*ReaderAt)(nil)
	_ io.Closer   = (*ReaderAt)(nil)
)

// ReaderAt serializes access to a Stream and exposes it as an io.ReaderAt.
//
// It is safe for concurrent use. Offsets inside the cached region are served
// from memory; offsets past it fetch forward from the source.
type ReaderAt struct {
	mu sync.Mutex
	s  *Stream
}

// NewReaderAt wraps s. The ReaderAt takes over s; callers should no longer
// use s directly.
func NewReaderAt(s *Stream) *ReaderAt {
	return &ReaderAt{s: s}
}

// ReadAt implements io.ReaderAt.
func (r *ReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrInvalidArgument, off)
	}
	if len(p) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pos, err := r.s.Seek(off, io.SeekStart)
	if err != nil {
		return 0, err
	}
	if pos < off {
		return 0, io.EOF
	}
	n, err := io.ReadFull(r.s, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

// Size returns the total length of the underlying source.
func (r *ReaderAt) Size() int64 {
	return r.s.Len()
}

// Cached returns the number of bytes held in memory.
func (r *ReaderAt) Cached() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s.Cached()
}

// Close closes the underlying Stream.
func (r *ReaderAt) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s.Close()
}
