package repository

import (
	"fmt"
	"time"
)

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1s, TF1m, TF5m:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1m }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Duration returns the bucket width of tf.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1s:
		return time.Second
	case TF5m:
		return 5 * time.Minute
	default:
		return time.Minute
	}
}

// StepsPerWindow returns how many fine buckets make up one coarse bucket.
func StepsPerWindow(coarse, fine Timeframe) (int, error) {
	if !IsValidTimeframe(coarse) || !IsValidTimeframe(fine) {
		return 0, fmt.Errorf("unsupported timeframe pair %s/%s", coarse, fine)
	}
	c, f := coarse.Duration(), fine.Duration()
	if c < f || c%f != 0 {
		return 0, fmt.Errorf("coarse timeframe %s is not a multiple of %s", coarse, fine)
	}
	return int(c / f), nil
}
