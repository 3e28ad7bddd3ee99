package analysis

import (
	"strconv"
	"strings"
)

const (
	// DefaultDays is used when no usable window is given
	DefaultDays = 30
	// MaxDays caps the window at one year
	MaxDays = 365
)

// ParseDays reads the window argument of the slash command.
// Empty, non-numeric and non-positive input yields DefaultDays; anything
// above MaxDays is capped.
func ParseDays(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return DefaultDays
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return DefaultDays
	}
	return ClampDays(n)
}

// ClampDays applies the same bounds as ParseDays to a number
func ClampDays(n int) int {
	switch {
	case n <= 0:
		return DefaultDays
	case n > MaxDays:
		return MaxDays
	default:
		return n
	}
}
