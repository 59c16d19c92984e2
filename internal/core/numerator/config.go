// Package numerator describes how quotations, sales orders and job orders
// are numbered. Storage backends implement Generator.
package numerator

import (
	"fmt"
	"time"
)

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict uses UPDATE ... RETURNING for every number.
	// Guarantees sequential numbers without gaps.
	StrategyStrict Strategy = iota

	// StrategyCached allocates ranges of numbers in memory.
	// Faster, but may produce gaps if the process restarts.
	StrategyCached
)

// Options configuration for number generation.
type Options struct {
	Strategy Strategy
	// RangeSize is the number of values allocated at once by StrategyCached.
	// Default is 50.
	RangeSize int64
}

// DefaultOptions returns standard options (Strict).
func DefaultOptions() *Options {
	return &Options{
		Strategy: StrategyStrict,
	}
}

// Reset periods.
const (
	ResetMonthly = "month"
	ResetYearly  = "year"
	ResetNever   = "never"
)

// Config holds numbering configuration for one document type.
type Config struct {
	// Sequence names the counter (e.g. "quotation"); counters are independent per sequence.
	Sequence string

	// Prefix is prepended as "PREFIX-" when set (e.g. "JO").
	Prefix string

	// PadWidth is the minimum width of the running number (default 3)
	PadWidth int

	// ResetPeriod: "month", "year", "never"
	ResetPeriod string
}

// DefaultConfig returns the YYYY.MM.NNN layout with a monthly reset.
func DefaultConfig(sequence, prefix string) Config {
	return Config{
		Sequence:    sequence,
		Prefix:      prefix,
		PadWidth:    3,
		ResetPeriod: ResetMonthly,
	}
}

// Key returns the counter key for the period.
func (c Config) Key(period time.Time) string {
	switch c.ResetPeriod {
	case ResetMonthly:
		return fmt.Sprintf("%s_%s", c.Sequence, period.Format("2006_01"))
	case ResetYearly:
		return fmt.Sprintf("%s_%s", c.Sequence, period.Format("2006"))
	default:
		return c.Sequence
	}
}

// Format renders a document number, e.g. "2026.10.007" or "JO-2026.10.007".
func (c Config) Format(period time.Time, num int64) string {
	padWidth := c.PadWidth
	if padWidth == 0 {
		padWidth = 3
	}
	n := fmt.Sprintf("%s.%0*d", period.Format("2006.01"), padWidth, num)
	if c.Prefix != "" {
		return c.Prefix + "-" + n
	}
	return n
}
