package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseInterval parses "15m", "1h", "4h", "1d", "1w" into time.Duration.
func ParseInterval(interval string) (time.Duration, error) {
	raw := interval
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return 0, fmt.Errorf("interval is empty")
	}
	unit := interval[len(interval)-1]
	numStr := strings.TrimSpace(interval[:len(interval)-1])
	if numStr == "" {
		return 0, fmt.Errorf("invalid interval %q", raw)
	}
	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", raw)
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid interval unit %q", raw)
	}
}

// BarsPerYear is the number of bars of the given width in 365 days.
func BarsPerYear(interval string) float64 {
	d, err := ParseInterval(interval)
	if err != nil || d <= 0 {
		return 0
	}
	return float64(365*24*time.Hour) / float64(d)
}
