package risk

import (
	"fmt"
	"time"
)

// TimeFilter blocks new entries during low-liquidity UTC hours.
type TimeFilter struct {
	enabled bool
	avoid   map[int]bool
}

// NewTimeFilter builds a filter over the given UTC hours.
func NewTimeFilter(enabled bool, avoidHours []int) TimeFilter {
	avoid := make(map[int]bool, len(avoidHours))
	for _, h := range avoidHours {
		avoid[h] = true
	}
	return TimeFilter{enabled: enabled, avoid: avoid}
}

// Allow reports whether new entries are permitted at now.
func (f TimeFilter) Allow(now time.Time) (bool, string) {
	if !f.enabled {
		return true, ""
	}
	h := now.UTC().Hour()
	if f.avoid[h] {
		return false, fmt.Sprintf("low-liquidity hour %02d:00 UTC", h)
	}
	return true, ""
}
