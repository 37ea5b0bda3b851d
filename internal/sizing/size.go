// Package sizing provides overflow-checked conversions between the int64
// offsets callers see and the int lengths the in-memory cache works with.
package sizing

import "math"

// ToInt converts a non-negative int64 to int, returning overflowErr if it
// doesn't fit on this platform.
func ToInt(size int64, overflowErr error) (int, error) {
	if size < 0 || uint64(size) > uint64(math.MaxInt) {
		return 0, overflowErr
	}
	return int(size), nil
}

// Remaining returns total-done clamped to [0, limit].
// A negative limit means no limit.
func Remaining(total, done, limit int64) int64 {
	rem := total - done
	if rem < 0 {
		return 0
	}
	if limit >= 0 && rem > limit {
		return limit
	}
	return rem
}
