package util

import "math"

// SafeUint64 converts a signed count to unsigned, floor-clamping negative
// values to zero rather than wrapping.
func SafeUint64(value int64) uint64 {
	if value < 0 {
		return 0
	}
	return uint64(value)
}

func SafeInt32(value int64) int32 {
	if value < math.MinInt32 {
		return math.MinInt32
	}
	if value > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(value)
}
