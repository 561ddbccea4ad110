package formatting

import (
	"math"
	"strconv"
)

// FormatMeasure renders an optional measured value with fixed precision.
// A negative precision uses the fewest digits that represent v exactly.
// Nil, NaN, and infinite values render as the empty string.
func FormatMeasure(v *float64, precision int) string {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', max(precision, -1), 64)
}

// Round returns v rounded half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
