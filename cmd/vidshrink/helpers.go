package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseAge accepts a Go duration ("36h", "90m") or a bare number of hours.
func parseAge(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if hours, err := strconv.ParseFloat(value, 64); err == nil {
		if hours <= 0 {
			return 0, fmt.Errorf("max age must be positive, got %q", value)
		}
		return time.Duration(hours * float64(time.Hour)), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid max age %q: %w", value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("max age must be positive, got %q", value)
	}
	return d, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
