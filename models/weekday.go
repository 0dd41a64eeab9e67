package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNoWeekdays = errors.New("at least one valid day must be specified")

var weekdaysByName = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// NormalizeWeekdays validates day names case-insensitively and returns them deduplicated,
// canonically spelled and ordered Monday first.
func NormalizeWeekdays(days []string) ([]string, error) {
	if len(days) == 0 {
		return nil, ErrNoWeekdays
	}

	var seen [7]bool
	for _, d := range days {
		wd, ok := weekdaysByName[strings.ToLower(strings.TrimSpace(d))]
		if !ok {
			return nil, fmt.Errorf("invalid day %q", d)
		}
		seen[wd] = true
	}

	normalized := make([]string, 0, len(days))
	for i := 1; i <= 7; i++ {
		wd := time.Weekday(i % 7)
		if seen[wd] {
			normalized = append(normalized, wd.String())
		}
	}
	return normalized, nil
}
