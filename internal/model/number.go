package model

import (
	"math"
	"strconv"
)

// ParseNumber parses an exchange decimal string. Unparseable, out of range
// and non-finite values become 0.
func ParseNumber(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
