package util

import (
	"math"
)

// AddUint64 adds a list of uint64s together, the boolean indicator is false if the sum overflows uint64.
func AddUint64(ns ...uint64) (sum uint64, ok bool) {
	ok = true
	for _, n := range ns {
		if n > math.MaxUint64-sum {
			ok = false
		}
		sum += n
	}
	return sum, ok
}

// SafeAdd returns a+b and checks for overflow
func SafeAdd(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}

// SafeSub returns a-b and checks for underflow
func SafeSub(a, b uint64) (uint64, bool) {
	if a < b {
		return 0, false
	}
	return a - b, true
}
