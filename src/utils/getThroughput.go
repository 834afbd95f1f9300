package utils

import "time"

// GetThroughput returns rows per second over elapsed.
func GetThroughput(rows int, elapsed time.Duration) float64 {
	seconds := elapsed.Seconds()

	if seconds <= 0 {
		return 0 // Avoid division by zero
	}

	return float64(rows) / seconds
}
