package utils

import "fmt"

// ShortenLog abbreviates a hash for log lines, keeping both ends so
// adjacent slots stay distinguishable.
func ShortenLog(hash string) string {
	cut := 8
	switch {
	case len(hash) <= 8:
		return hash
	case len(hash) <= 16:
		cut = 4
	}
	return fmt.Sprintf("%s...%s", hash[:cut], hash[len(hash)-cut:])
}
