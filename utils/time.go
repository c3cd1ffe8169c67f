package utils

import "time"

// SecondsBetween reports the elapsed seconds from one timestamp to another.
func SecondsBetween(from, to time.Time) float64 {
	return to.Sub(from).Seconds()
}
