package packstream

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/packstream/internal/testutil"
)

func newTestStream(t *testing.T, src Source, opts ...Option) *Stream {
	t.Helper()
	s, err := New(src, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStreamReadSeekReadScenario(t *testing.T) {
	t.Parallel()

	src := testutil.NewSource(testutil.Sequence(10), testutil.WithStrict(t))
	s := newTestStream(t, src)

	p := make([]byte, 4)
	n, err := s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0, 1, 2, 3}, p)
	assert.Equal(t, int64(4), s.Cached())
	assert.Equal(t, int64(4), s.Position())

	pos, err := s.Seek(8, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(8), pos)
	assert.Equal(t, int64(8), s.Cached())
	assert.Equal(t, 0, src.Closes)

	p = make([]byte, 5)
	n, err = s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{8, 9}, p[:n])
	assert.Equal(t, int64(10), s.Cached())
	assert.Equal(t, 1, src.Closes, "source should be released once fully cached")

	n, err = s.Read(p)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, []int{4, 4, 2}, src.Requests)
}

func TestStreamReadFetchesOnlyMissingBytes(t *testing.T) {
	t.Parallel()

	src := testutil.NewSource(testutil.Sequence(100))
	s := newTestStream(t, src)

	_, err := s.Seek(10, io.SeekStart)
	require.NoError(t, err)
	_, err = s.Seek(4, io.SeekStart)
	require.NoError(t, err)

	p := make([]byte, 8)
	n, err := s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, testutil.Sequence(12)[4:], p)
	assert.Equal(t, int64(12), s.Cached())
	assert.Equal(t, []int{10, 2}, src.Requests)
}

func TestStreamSeekWithinCacheDoesNotReadSource(t *testing.T) {
	t.Parallel()

	src := testutil.NewSource(testutil.Sequence(32))
	s := newTestStream(t, src)

	_, err := s.Seek(16, io.SeekStart)
	require.NoError(t, err)
	requests := len(src.Requests)

	for _, off := range []int64{0, 5, 16, 3} {
		pos, err := s.Seek(off, io.SeekStart)
		require.NoError(t, err)
		assert.Equal(t, off, pos)
	}
	assert.Len(t, src.Requests, requests)
	assert.Equal(t, int64(16), s.Cached())
}

func TestStreamSeekPastEndClamps(t *testing.T) {
	t.Parallel()

	src := testutil.NewSource(testutil.Sequence(10), testutil.WithStrict(t))
	s := newTestStream(t, src)

	pos, err := s.Seek(100, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos)
	assert.Equal(t, int64(10), s.Cached())
	assert.Equal(t, 1, src.Closes)

	n, err := s.Read(make([]byte, 4))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamSeekAccumulatesChunks(t *testing.T) {
	t.Parallel()

	src := testutil.NewSource(testutil.Sequence(10), testutil.WithChunkSize(3))
	s := newTestStream(t, src)

	pos, err := s.Seek(8, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(8), pos)
	assert.Equal(t, int64(8), s.Cached())
	assert.Equal(t, []int{8, 5, 2}, src.Requests)
}

func TestStreamChunkedMatchesOneShot(t *testing.T) {
	t.Parallel()

	data := testutil.Sequence(1000)
	contents := make([][]byte, 0, 3)
	for _, chunk := range []int{0, 1, 7} {
		src := testutil.NewSource(data, testutil.WithChunkSize(chunk), testutil.WithStrict(t))
		s := newTestStream(t, src)

		pos, err := s.Seek(int64(len(data)), io.SeekStart)
		require.NoError(t, err)
		require.Equal(t, int64(len(data)), pos)
		assert.Equal(t, 1, src.Closes)

		_, err = s.Seek(0, io.SeekStart)
		require.NoError(t, err)
		got, err := io.ReadAll(s)
		require.NoError(t, err)
		contents = append(contents, got)
	}
	for _, got := range contents {
		assert.Equal(t, data, got)
	}
}

func TestStreamReadChunkedSourceShortReads(t *testing.T) {
	t.Parallel()

	data := testutil.Sequence(20)
	src := testutil.NewSource(data, testutil.WithChunkSize(3))
	s := newTestStream(t, src)

	p := make([]byte, 8)
	n, err := s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "a read serves what one source call delivered")
	assert.Equal(t, data[:3], p[:n])

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, data[3:], got)
}

func TestStreamCacheTransparency(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1)) //nolint:gosec // deterministic test input
	data := make([]byte, 4096)
	_, _ = rng.Read(data)

	src := testutil.NewSource(data, testutil.WithChunkSize(13), testutil.WithStrict(t))
	s := newTestStream(t, src)

	var lastCached int64
	for range 500 {
		if rng.Intn(3) == 0 {
			target := rng.Int63n(int64(len(data)) + 64)
			pos, err := s.Seek(target, io.SeekStart)
			require.NoError(t, err)
			assert.Equal(t, min(target, int64(len(data))), pos)
		} else {
			start := s.Position()
			p := make([]byte, rng.Intn(200))
			n, err := s.Read(p)
			if err != nil {
				require.ErrorIs(t, err, io.EOF)
			}
			require.Equal(t, data[start:start+int64(n)], p[:n])
		}

		cached := s.Cached()
		require.GreaterOrEqual(t, cached, lastCached)
		require.LessOrEqual(t, cached, s.Len())
		require.GreaterOrEqual(t, s.Position(), int64(0))
		require.LessOrEqual(t, s.Position(), cached)
		lastCached = cached
	}
}

func TestStreamZeroLengthRead(t *testing.T) {
	t.Parallel()

	src := testutil.NewSource(testutil.Sequence(10))
	s := newTestStream(t, src)

	n, err := s.Read(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, src.Requests)
}

func TestStreamEarlyEOF(t *testing.T) {
	t.Parallel()

	src := testutil.NewSource(testutil.Sequence(10), testutil.WithReportedSize(20))
	s := newTestStream(t, src)
	assert.Equal(t, int64(20), s.Len())

	pos, err := s.Seek(15, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos)
	assert.Equal(t, int64(10), s.Cached())
	assert.Equal(t, 1, src.Closes)

	requests := len(src.Requests)
	n, err := s.Read(make([]byte, 4))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Len(t, src.Requests, requests, "a drained source is not read again")
}

func TestStreamInlineEOF(t *testing.T) {
	t.Parallel()

	src := testutil.NewSource(testutil.Sequence(10), testutil.WithInlineEOF())
	s := newTestStream(t, src)

	p := make([]byte, 10)
	n, err := s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, testutil.Sequence(10), p)
	assert.Equal(t, 1, src.Closes)
}

func TestStreamSourceErrorPropagates(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	src := testutil.NewSource(testutil.Sequence(10), testutil.WithReadError(6, errBoom))
	s := newTestStream(t, src)

	n, err := s.Read(make([]byte, 8))
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(0), s.Position())
	assert.Equal(t, int64(6), s.Cached(), "bytes delivered with the error are kept")

	// The failed fill's bytes are not served.
	requests := len(src.Requests)
	n, err = s.Read(make([]byte, 6))
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, n)
	assert.Len(t, src.Requests, requests)

	pos, err := s.Seek(9, io.SeekStart)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, int64(0), pos)
}

func TestStreamSourceErrorIsSticky(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	src := testutil.NewSource(testutil.Sequence(10), testutil.WithReadError(4, errBoom), testutil.WithStrict(t))
	s := newTestStream(t, src)

	_, err := s.Seek(2, io.SeekStart)
	require.NoError(t, err)
	_, err = s.Read(make([]byte, 8))
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, src.Closes, "a failed source is released")
	requests := len(src.Requests)

	// Bytes before the failed fill stay readable, up to where it started.
	_, err = s.Seek(0, io.SeekStart)
	require.NoError(t, err)
	p := make([]byte, 8)
	n, err := s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, testutil.Sequence(2), p[:n])

	n, err = s.Read(p)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, n)

	_, err = s.Seek(4, io.SeekStart)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, int64(2), s.Position())
	assert.Len(t, src.Requests, requests)
}

func TestStreamEmptyReads(t *testing.T) {
	t.Parallel()

	t.Run("tolerated", func(t *testing.T) {
		t.Parallel()
		src := testutil.NewSource(testutil.Sequence(4), testutil.WithEmptyReads(3))
		s := newTestStream(t, src)

		p := make([]byte, 4)
		n, err := s.Read(p)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("bounded", func(t *testing.T) {
		t.Parallel()
		src := testutil.NewSource(testutil.Sequence(4), testutil.WithEmptyReads(10))
		s := newTestStream(t, src, WithMaxEmptyReads(2))

		_, err := s.Read(make([]byte, 4))
		require.ErrorIs(t, err, io.ErrNoProgress)

		_, err = s.Seek(4, io.SeekStart)
		require.ErrorIs(t, err, io.ErrNoProgress)
		assert.Equal(t, int64(0), s.Cached())
	})
}

func TestStreamUnsupportedOperations(t *testing.T) {
	t.Parallel()

	src := testutil.NewSource(testutil.Sequence(10))
	s := newTestStream(t, src)
	_, err := s.Read(make([]byte, 3))
	require.NoError(t, err)

	n, err := s.Write([]byte("x"))
	assert.Equal(t, 0, n)
	require.ErrorIs(t, err, ErrUnsupported)
	require.ErrorIs(t, err, errors.ErrUnsupported)

	require.ErrorIs(t, s.Flush(), ErrUnsupported)
	require.ErrorIs(t, s.Truncate(2), ErrUnsupported)
	require.ErrorIs(t, s.SetPosition(1), ErrUnsupported)

	for _, whence := range []int{io.SeekCurrent, io.SeekEnd} {
		pos, err := s.Seek(1, whence)
		require.ErrorIs(t, err, ErrUnsupported)
		assert.Equal(t, int64(3), pos)
	}

	assert.Equal(t, int64(3), s.Cached())
	assert.Equal(t, int64(3), s.Position())
	assert.Len(t, src.Requests, 1)
}

func TestStreamNegativeSeek(t *testing.T) {
	t.Parallel()

	s := newTestStream(t, testutil.NewSource(testutil.Sequence(10)))
	_, err := s.Seek(-1, io.SeekStart)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewInvalidSource(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(testutil.NewSource(nil, testutil.WithReportedSize(-1)))
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestStreamEmptySourceReleasedImmediately(t *testing.T) {
	t.Parallel()

	src := testutil.NewSource(nil, testutil.WithStrict(t))
	s := newTestStream(t, src)
	assert.Equal(t, 1, src.Closes)

	n, err := s.Read(make([]byte, 4))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Empty(t, src.Requests)
}

func TestStreamClose(t *testing.T) {
	t.Parallel()

	t.Run("releases source once", func(t *testing.T) {
		t.Parallel()
		src := testutil.NewSource(testutil.Sequence(10))
		s, err := New(src)
		require.NoError(t, err)

		require.NoError(t, s.Close())
		require.NoError(t, s.Close())
		assert.Equal(t, 1, src.Closes)

		_, err = s.Read(make([]byte, 1))
		require.ErrorIs(t, err, ErrClosed)
		_, err = s.Seek(0, io.SeekStart)
		require.ErrorIs(t, err, ErrClosed)
	})

	t.Run("after early release", func(t *testing.T) {
		t.Parallel()
		src := testutil.NewSource(testutil.Sequence(10))
		s, err := New(src)
		require.NoError(t, err)

		_, err = s.Seek(10, io.SeekStart)
		require.NoError(t, err)
		assert.Equal(t, 1, src.Closes)

		require.NoError(t, s.Close())
		assert.Equal(t, 1, src.Closes)
	})

	t.Run("reports source close error", func(t *testing.T) {
		t.Parallel()
		errClose := errors.New("close failed")
		src := &failingCloseSource{Source: testutil.NewSource(testutil.Sequence(4)), err: errClose}
		s, err := New(src)
		require.NoError(t, err)

		_, err = io.ReadAll(s)
		require.NoError(t, err)
		require.ErrorIs(t, s.Close(), errClose)
	})
}

func TestStreamLogsRelease(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := newTestStream(t, testutil.NewSource(testutil.Sequence(8)), WithLogger(logger), WithInitialCapacity(64))

	_, err := s.Seek(8, io.SeekStart)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "cache fill")
	assert.Contains(t, buf.String(), "source released")
}

type failingCloseSource struct {
	Source
	err error
}

func (s *failingCloseSource) Close() error {
	_ = s.Source.Close()
	return s.err
}
