package snapshot

import "math"

// wrapThreshold bounds the server-tick wrap allowance: a stored tick
// within wrapThreshold of math.MaxInt64 treats a small incoming tick as a
// wrap rather than a regression. 1<<56 is well under 1% of the int64 range.
const wrapThreshold = int64(1) << 56

// isNewerTick reports whether candidate should be treated as strictly
// after last, honoring the wrap allowance near the int64 maximum.
func isNewerTick(candidate, last int64) bool {
	if candidate > last {
		return true
	}
	if last >= math.MaxInt64-wrapThreshold && candidate >= 0 && candidate < wrapThreshold {
		return true
	}
	return false
}
