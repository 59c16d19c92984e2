package numerator

import (
	"context"
	"time"
)

// Generator hands out document numbers. Numbers are unique per Config
// sequence and period; with the strict strategy they are also gapless,
// provided the caller's transaction commits.
type Generator interface {
	GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error)

	// SetNextNumber moves a counter, e.g. after importing documents numbered
	// elsewhere. The next number issued is value+1.
	SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error
}
