package compress

import (
	"io"

	"github.com/pierrec/lz4/v4"
)

// NewLZ4 returns a Source that decodes an lz4 frame stream read from input.
// The decompressed size must be given with WithSize. The Source owns input
// and closes it.
func NewLZ4(input io.ReadCloser, opts ...Option) (*Source, error) {
	cfg := newConfig(opts)
	if cfg.size < 0 {
		_ = input.Close()
		return nil, ErrUnknownSize
	}
	return &Source{
		r:     lz4.NewReader(input),
		input: input,
		size:  cfg.size,
	}, nil
}
