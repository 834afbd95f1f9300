package utils

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

func Mean(total float64, count int) float64 {
	if count == 0 {
		return 0.0
	}
	return total / float64(count)
}

// Percentage returns part/total*100, or 0 when total is 0.
func Percentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100
}

// Round rounds the exact binary value of value to the given number of
// decimal places, ties to even: 2.675 -> 2.67, 0.0025 -> 0.003.
func Round(value float64, places int32) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}
	d, err := decimal.NewFromString(strconv.FormatFloat(value, 'f', int(places), 64))
	if err != nil {
		return value
	}
	return d.InexactFloat64()
}

// FormatFloat renders the shortest representation of value, keeping a
// trailing ".0" on integral values (15 -> "15.0").
func FormatFloat(value float64) string {
	s := strconv.FormatFloat(value, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}
