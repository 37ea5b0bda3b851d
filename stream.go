package packstream

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/meigma/packstream/internal/arena"
	"github.com/meigma/packstream/internal/sizing"
)

// Interface compliance.
var (
	_ io.ReadSeekCloser = (*Stream)(nil)
)

// Stream is a read-only, forward-filling cache in front of a Source.
//
// Reads and seeks that reach past the cached region pull exactly the missing
// bytes from the source and append them to an in-memory buffer; everything
// already cached is served from memory. The source is closed as soon as the
// cache holds all of it.
//
// A source error other than io.EOF is sticky: the source is released and
// every later Read or Seek that needs bytes at or past the start of the
// failed fill returns the same error.
//
// A Stream is not safe for concurrent use.
type Stream struct {
	src        Source
	cache      *arena.Buffer
	total      int64
	cfg        config
	closed     bool
	releaseErr error
	err        error // first fill failure
	errAt      int64 // cached length before the failed fill
}

// New returns a Stream that caches src. The Stream owns src and closes it.
func New(src Source, opts ...Option) (*Stream, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrInvalidArgument)
	}
	total := src.Size()
	if total < 0 {
		return nil, fmt.Errorf("%w: negative source size %d", ErrInvalidArgument, total)
	}
	if _, err := sizing.ToInt(total, ErrSizeOverflow); err != nil {
		return nil, fmt.Errorf("source size %d: %w", total, err)
	}

	s := &Stream{
		src:   src,
		total: total,
		cfg:   newConfig(opts),
	}
	capacity := s.cfg.initialCapacity
	if int64(capacity) > total {
		capacity = int(total)
	}
	s.cache = arena.New(capacity)

	if total == 0 {
		s.release("empty source")
	}
	return s, nil
}

func (s *Stream) log() *slog.Logger {
	return s.cfg.log()
}

// Len returns the total length of the source, fixed at construction.
func (s *Stream) Len() int64 {
	return s.total
}

// Cached returns the number of bytes from the start of the source that are
// held in memory.
func (s *Stream) Cached() int64 {
	return int64(s.cache.Len())
}

// Position returns the current read offset.
func (s *Stream) Position() int64 {
	return int64(s.cache.Pos())
}

// SetPosition is unsupported; use Seek with io.SeekStart.
func (s *Stream) SetPosition(int64) error {
	return fmt.Errorf("%w: set position", ErrUnsupported)
}

// Read reads up to len(p) bytes at the current position.
//
// Bytes beyond the cached region are fetched from the source first. A short
// count means the source delivered less than requested on this call or the
// end was reached; io.EOF is returned once the position sits at the end.
// Source errors other than io.EOF are returned unchanged, and again on every
// later Read that reaches the region the failed fill was adding.
func (s *Stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.err != nil {
		pos := s.Position()
		if pos >= s.errAt {
			return 0, s.err
		}
		if end := pos + int64(len(p)); end > s.errAt {
			p = p[:s.errAt-pos]
		}
	}

	missing := s.Position() + int64(len(p)) - s.Cached()
	if missing > 0 {
		if err := s.fill(missing, false); err != nil {
			return 0, err
		}
	}
	return s.cache.Read(p)
}

// Seek moves the position to offset, which is interpreted relative to the
// start of the stream. Other values of whence fail with ErrUnsupported.
//
// Seeking inside the cached region never touches the source. Seeking past it
// fetches the gap; if the source ends first, the position is clamped to the
// end and that offset is returned without an error.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if whence != io.SeekStart {
		return s.Position(), fmt.Errorf("%w: seek whence %d", ErrUnsupported, whence)
	}
	if s.closed {
		return 0, ErrClosed
	}
	if offset < 0 {
		return s.Position(), fmt.Errorf("%w: negative offset %d", ErrInvalidArgument, offset)
	}
	if s.err != nil && offset > s.errAt {
		return s.Position(), s.err
	}

	if cached := s.Cached(); offset > cached {
		if err := s.fill(offset-cached, true); err != nil {
			return s.Position(), err
		}
		offset = min(offset, s.Cached())
	}
	if err := s.cache.SeekTo(int(offset)); err != nil {
		return s.Position(), err
	}
	return offset, nil
}

// Write is unsupported.
func (s *Stream) Write([]byte) (int, error) {
	return 0, fmt.Errorf("%w: write", ErrUnsupported)
}

// Flush is unsupported.
func (s *Stream) Flush() error {
	return fmt.Errorf("%w: flush", ErrUnsupported)
}

// Truncate is unsupported.
func (s *Stream) Truncate(int64) error {
	return fmt.Errorf("%w: truncate", ErrUnsupported)
}

// Close releases the cache and, unless it was already released, the source.
// It returns the error from closing the source, whenever that happened.
// Calling Close more than once is a no-op.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.release("stream closed")
	s.cache.Release()
	return s.releaseErr
}

// fill appends up to want more bytes from the source to the cache.
//
// Without full, it stops after the first read that delivers anything; with
// full, it keeps reading until want bytes arrived or the source ends. Bytes
// delivered together with an error are kept, but the error is recorded and
// the source released. A source that ends, or a cache that reaches the source
// size, also releases the source.
func (s *Stream) fill(want int64, full bool) error {
	if s.src == nil {
		return nil
	}
	want = sizing.Remaining(s.total, s.Cached(), want)
	if want == 0 {
		return nil
	}

	start := s.Cached()
	tail := s.cache.Reserve(int(want))
	got, empty := 0, 0
	var err error
	for got < len(tail) {
		var n int
		n, err = s.src.Read(tail[got:])
		got += n
		if err != nil {
			break
		}
		if n == 0 {
			empty++
			if empty >= s.cfg.maxEmptyReads {
				err = io.ErrNoProgress
				break
			}
			continue
		}
		empty = 0
		if !full {
			break
		}
	}
	s.cache.Commit(got)
	s.log().Debug("cache fill", "requested", want, "got", got, "cached", s.Cached(), "total", s.total)

	drained := err == io.EOF
	if drained {
		err = nil
		if s.Cached() < s.total {
			s.log().Debug("source ended early", "cached", s.Cached(), "total", s.total)
		}
	}
	if err != nil {
		s.err, s.errAt = err, start
		s.log().Debug("source failed", "at", start, "cached", s.Cached(), "error", err)
		s.release("source failed")
		return err
	}
	if drained || s.Cached() == s.total {
		s.release("source drained")
	}
	return nil
}

// release closes the source if it is still held. The first close error is
// kept for Close to report.
func (s *Stream) release(reason string) {
	if s.src == nil {
		return
	}
	err := s.src.Close()
	s.src = nil
	if err != nil {
		s.log().Warn("close source", "reason", reason, "error", err)
		if s.releaseErr == nil {
			s.releaseErr = err
		}
		return
	}
	s.log().Debug("source released", "reason", reason, "cached", s.Cached())
}
