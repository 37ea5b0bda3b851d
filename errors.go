package packstream

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned for operations a read-only, forward-fill
	// stream cannot perform: writes, flushes, truncation, setting the
	// position directly and seeks relative to anything but the start.
	ErrUnsupported = fmt.Errorf("packstream: %w", errors.ErrUnsupported)

	// ErrInvalidArgument is returned for a nil source, a negative source
	// size, or a negative offset.
	ErrInvalidArgument = errors.New("packstream: invalid argument")

	// ErrClosed is returned by operations on a closed Stream, ReaderAt or Group.
	ErrClosed = errors.New("packstream: closed")

	// ErrSizeOverflow is returned when a source is larger than this platform
	// can hold in memory.
	ErrSizeOverflow = errors.New("packstream: size overflow")
)
