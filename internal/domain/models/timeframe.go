package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

var ErrInvalidTimeframe = errors.New("invalid timeframe")

// AllTimeframes lists supported timeframes from the smallest bucket to the largest.
var AllTimeframes = []Timeframe{TF1m, TF5m, TF15m, TF1h, TF4h, TF1d}

var timeframeAliases = map[string]Timeframe{
	"daily": TF1d,
	"d1":    TF1d,
	"h1":    TF1h,
	"h4":    TF4h,
	"m1":    TF1m,
	"m5":    TF5m,
	"m15":   TF15m,
}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1m, TF5m, TF15m, TF1h, TF4h, TF1d:
		return true
	default:
		return false
	}
}

// ParseTimeframe accepts canonical names and the aliases used by trading terminals.
func ParseTimeframe(s string) (Timeframe, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	if tf := Timeframe(raw); IsValidTimeframe(tf) {
		return tf, nil
	}
	if tf, ok := timeframeAliases[raw]; ok {
		return tf, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTimeframe, s)
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1h }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	if tf, err := ParseTimeframe(s); err == nil {
		return tf
	}
	return DefaultTimeframe()
}

// Duration is the width of one candle.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Validity is how long a signal generated on this timeframe stays actionable.
// Slower timeframes keep their setups alive longer.
func (tf Timeframe) Validity() time.Duration {
	switch tf {
	case TF1m:
		return 5 * time.Minute
	case TF5m:
		return 20 * time.Minute
	case TF15m:
		return time.Hour
	case TF1h:
		return 2 * time.Hour
	case TF4h:
		return 8 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

func (tf Timeframe) String() string { return string(tf) }
