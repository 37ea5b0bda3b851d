// Package compress provides packstream sources that decompress a forward-only
// input on the fly.
//
// Decompressors can only move forward, which makes them a natural fit for a
// packstream.Stream: the decompressed bytes are produced once, cached, and the
// decoder and compressed input are released as soon as everything has been
// decoded.
package compress

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrUnknownSize is returned when the decompressed size is neither given
	// with WithSize nor recorded in the stream header.
	ErrUnknownSize = errors.New("compress: unknown decompressed size")

	// ErrInvalidHeader is returned when the stream header cannot be parsed.
	ErrInvalidHeader = errors.New("compress: invalid header")

	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("compress: source closed")
)

// Source yields the decompressed bytes of a compressed input.
// It satisfies packstream.Source.
type Source struct {
	r       io.Reader
	release func()
	input   io.Closer
	size    int64
	read    int64
	closed  bool

	// checkTrailing is set when size came from the first frame header, so
	// output beyond it means the input holds more frames.
	checkTrailing bool
}

// Option configures a Source.
type Option func(*config)

type config struct {
	size int64
	pool *DecoderPool
}

func newConfig(opts []Option) config {
	cfg := config{size: -1}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithSize sets the decompressed size instead of reading it from the header.
func WithSize(n int64) Option {
	return func(c *config) {
		c.size = n
	}
}

// WithPool sets the zstd decoder pool. By default a shared pool is used.
func WithPool(p *DecoderPool) Option {
	return func(c *config) {
		c.pool = p
	}
}

// Read reads decompressed bytes, never more than Size in total.
func (s *Source) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.read >= s.size {
		return 0, s.finish()
	}
	if rem := s.size - s.read; int64(len(p)) > rem {
		p = p[:rem]
	}
	n, err := s.r.Read(p)
	s.read += int64(n)
	if err == nil && s.read == s.size {
		err = s.finish()
	}
	return n, err
}

// finish reports how the output ends once Size bytes were produced.
func (s *Source) finish() error {
	if !s.checkTrailing {
		return io.EOF
	}
	var b [1]byte
	n, err := io.ReadFull(s.r, b[:])
	if n > 0 {
		return fmt.Errorf("%w: input continues past the first frame", ErrUnknownSize)
	}
	if err != io.EOF {
		return err
	}
	s.checkTrailing = false
	return io.EOF
}

// Size returns the decompressed size.
func (s *Source) Size() int64 {
	return s.size
}

// Close releases the decoder and closes the compressed input.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.release != nil {
		s.release()
	}
	if s.input == nil {
		return nil
	}
	if err := s.input.Close(); err != nil {
		return fmt.Errorf("close compressed input: %w", err)
	}
	return nil
}
