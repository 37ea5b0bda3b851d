package packstream

import (
	"fmt"
	"io"
	"os"
)

// Source is a forward-only byte provider of known length.
//
// Read follows io.Reader: it may return fewer bytes than requested, and it
// reports exhaustion with io.EOF. Size must not change over the lifetime of
// the source. A Stream calls Close exactly once.
type Source interface {
	io.ReadCloser
	Size() int64
}

// NewReaderSource adapts r to a Source of the given size.
// If r implements io.Closer, Close is forwarded to it.
func NewReaderSource(r io.Reader, size int64) Source {
	return &readerSource{r: r, size: size}
}

type readerSource struct {
	r    io.Reader
	size int64
}

func (s *readerSource) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *readerSource) Size() int64 {
	return s.size
}

func (s *readerSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// OpenFile opens the named file as a Source sized by its current length.
func OpenFile(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrInvalidArgument, path)
	}
	return &readerSource{r: f, size: info.Size()}, nil
}
