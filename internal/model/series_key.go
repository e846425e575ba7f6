package model

import (
	"fmt"
	"strconv"
	"strings"
)

// SeriesKey identifies a bar sequence by instrument and timeframe.
type SeriesKey struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

// String returns "symbol/timeframe".
func (k SeriesKey) String() string {
	return k.Symbol + "/" + k.Timeframe
}

// LayoutKey returns the persistence namespace "{symbol}/{timeframe}/layout@v{n}".
func (k SeriesKey) LayoutKey(version int) string {
	return k.Symbol + "/" + k.Timeframe + "/layout@v" + Itoa(version)
}

// ParseTimeframe converts a resolution string into seconds.
//
// Accepted forms: bare minutes ("1", "15", "240"), unit-suffixed values
// ("30s", "5m", "4h", "1D", "1W", "1M") and the single letters "D", "W", "M".
// A month is counted as 30 days.
func ParseTimeframe(tf string) (int64, error) {
	s := strings.TrimSpace(tf)
	if s == "" {
		return 0, fmt.Errorf("empty timeframe")
	}
	unit := s[len(s)-1]
	num := s[:len(s)-1]
	var mult int64
	switch unit {
	case 's', 'S':
		mult = 1
	case 'm':
		mult = 60
	case 'h', 'H':
		mult = 3600
	case 'D', 'd':
		mult = 86400
	case 'W', 'w':
		mult = 7 * 86400
	case 'M':
		mult = 30 * 86400
	default:
		// bare number of minutes
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid timeframe %q", tf)
		}
		return n * 60, nil
	}
	if num == "" {
		return mult, nil
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	return n * mult, nil
}

// Itoa is a minimal int-to-string converter used when building store keys.
func Itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
