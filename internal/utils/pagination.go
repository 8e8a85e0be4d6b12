package utils

import (
	"strconv"
	"strings"
)

// ClampLimit bounds a requested page size to [1, max], using def when n <= 0.
func ClampLimit(n, def, max int) int {
	if n <= 0 {
		n = def
	}
	if n > max {
		n = max
	}
	return n
}

// ParseLimit reads a page size from a query value. Missing, malformed and
// non-positive values fall back to def; the result never exceeds max.
//
//	ParseLimit("", 30, 100)    // 30
//	ParseLimit("500", 30, 100) // 100
//	ParseLimit("ten", 30, 100) // 30
func ParseLimit(raw string, def, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		n = 0
	}
	return ClampLimit(n, def, max)
}
