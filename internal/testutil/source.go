package testutil

import (
	"io"
	"testing"
)

// Source is a scripted forward-only byte source for stream tests.
//
// It records every Read request and Close call, can deliver data in small
// chunks, and can fail the test if it is read after it was drained or closed.
type Source struct {
	tb         testing.TB
	data       []byte
	off        int
	size       int64
	chunk      int
	eofInline  bool
	errAt      int
	err        error
	emptyReads int

	// Requests holds the len(p) of every Read call in order.
	Requests []int
	// Closes counts Close calls.
	Closes int
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithChunkSize caps the bytes returned by a single Read.
func WithChunkSize(n int) SourceOption {
	return func(s *Source) {
		s.chunk = n
	}
}

// WithReportedSize overrides the value returned by Size.
func WithReportedSize(n int64) SourceOption {
	return func(s *Source) {
		s.size = n
	}
}

// WithInlineEOF returns io.EOF together with the final bytes instead of on
// the following call.
func WithInlineEOF() SourceOption {
	return func(s *Source) {
		s.eofInline = true
	}
}

// WithReadError makes Read fail with err once the read offset reaches at.
// Bytes before at are still delivered by that call.
func WithReadError(at int, err error) SourceOption {
	return func(s *Source) {
		s.errAt = at
		s.err = err
	}
}

// WithEmptyReads makes the first n Read calls return (0, nil).
func WithEmptyReads(n int) SourceOption {
	return func(s *Source) {
		s.emptyReads = n
	}
}

// WithStrict fails tb if Read is called after the source delivered all of
// its data or after Close.
func WithStrict(tb testing.TB) SourceOption {
	return func(s *Source) {
		s.tb = tb
	}
}

// NewSource returns a Source that serves data.
func NewSource(data []byte, opts ...SourceOption) *Source {
	s := &Source{
		data:  data,
		size:  int64(len(data)),
		errAt: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read implements io.Reader.
func (s *Source) Read(p []byte) (int, error) {
	s.Requests = append(s.Requests, len(p))
	if s.tb != nil {
		s.tb.Helper()
		if s.Closes > 0 {
			s.tb.Errorf("source read after close")
		}
		if s.off >= len(s.data) && len(s.data) > 0 {
			s.tb.Errorf("source read after drain (request %d bytes)", len(p))
		}
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.emptyReads > 0 {
		s.emptyReads--
		return 0, nil
	}
	if s.err != nil && s.off >= s.errAt {
		return 0, s.err
	}
	if s.off >= len(s.data) {
		return 0, io.EOF
	}

	end := len(s.data)
	if s.chunk > 0 && s.off+s.chunk < end {
		end = s.off + s.chunk
	}
	if s.err != nil && s.errAt < end {
		end = s.errAt
	}
	n := copy(p, s.data[s.off:end])
	s.off += n

	if s.err != nil && s.off >= s.errAt {
		return n, s.err
	}
	if s.eofInline && s.off >= len(s.data) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the reported total length.
func (s *Source) Size() int64 {
	return s.size
}

// Close records the call.
func (s *Source) Close() error {
	s.Closes++
	return nil
}

// Offset returns the number of bytes delivered so far.
func (s *Source) Offset() int {
	return s.off
}

// Sequence returns n bytes whose values are their own offsets modulo 256.
func Sequence(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}
