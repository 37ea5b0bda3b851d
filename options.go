package packstream

import "log/slog"

// DefaultMaxEmptyReads is the number of consecutive (0, nil) results a fill
// tolerates from a source before giving up with io.ErrNoProgress.
const DefaultMaxEmptyReads = 100

type config struct {
	logger          *slog.Logger
	initialCapacity int
	maxEmptyReads   int
}

func newConfig(opts []Option) config {
	cfg := config{maxEmptyReads: DefaultMaxEmptyReads}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	return cfg
}

// log returns the logger, falling back to a discard logger if nil.
func (c *config) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Option configures a Stream.
type Option func(*config)

// WithLogger sets the logger used for fill and release events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithInitialCapacity preallocates room for n cached bytes.
// The value is capped at the source size. It does not cause any read-ahead.
func WithInitialCapacity(n int) Option {
	return func(c *config) {
		if n < 0 {
			n = 0
		}
		c.initialCapacity = n
	}
}

// WithMaxEmptyReads sets how many consecutive empty reads a fill tolerates
// before failing with io.ErrNoProgress. Values < 1 are treated as 1.
func WithMaxEmptyReads(n int) Option {
	return func(c *config) {
		if n < 1 {
			n = 1
		}
		c.maxEmptyReads = n
	}
}
