package compress

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
)

// NewZstd returns a Source that decodes a zstd stream read from input.
//
// Unless WithSize is given, the decompressed size is taken from the frame
// content size in the first frame header; frames written without it fail
// with ErrUnknownSize. Such a Source covers a single frame: if the input
// holds more, the Read that completes the first frame fails with
// ErrUnknownSize. Give WithSize for multi-frame input. The Source owns input
// and closes it.
func NewZstd(input io.ReadCloser, opts ...Option) (*Source, error) {
	cfg := newConfig(opts)
	br := bufio.NewReader(input)

	size := cfg.size
	if size < 0 {
		var err error
		size, err = zstdContentSize(br)
		if err != nil {
			_ = input.Close()
			return nil, err
		}
	}

	pool := cfg.pool
	if pool == nil {
		pool = defaultPool
	}
	dec, release, err := pool.Get(br)
	if err != nil {
		_ = input.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Source{
		r:       dec,
		release: release,
		input:   input,
		size:    size,

		checkTrailing: cfg.size < 0,
	}, nil
}

// zstdContentSize peeks at the first frame header without consuming it.
func zstdContentSize(br *bufio.Reader) (int64, error) {
	// A short peek is fine: small inputs are shorter than the maximum header.
	buf, _ := br.Peek(zstd.HeaderMaxSize) //nolint:errcheck // decode reports truncation
	var h zstd.Header
	if err := h.Decode(buf); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if h.Skippable || !h.HasFCS {
		return 0, ErrUnknownSize
	}
	if h.FrameContentSize > math.MaxInt64 {
		return 0, fmt.Errorf("%w: frame content size %d", ErrInvalidHeader, h.FrameContentSize)
	}
	return int64(h.FrameContentSize), nil
}
