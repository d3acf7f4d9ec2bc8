package model

import (
	"fmt"
	"strings"
	"time"
)

// ParseQuietWindow parses a "HH:MM-HH:MM" window specification.
func ParseQuietWindow(s string) (*QuietWindow, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("quiet hours must be in HH:MM-HH:MM format, got %q", s)
	}
	start, err := parseTimeOfDay(parts[0])
	if err != nil {
		return nil, err
	}
	end, err := parseTimeOfDay(parts[1])
	if err != nil {
		return nil, err
	}
	return &QuietWindow{Start: start, End: end}, nil
}

func parseTimeOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
