package domain

import (
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze time via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source for batch stamping. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// NewBatch wraps one run's merged records with a fresh run ID and the current time.
func NewBatch(records []MergedRecord) MergedBatch {
	return MergedBatch{
		RunID:       uuid.NewString(),
		ProcessedAt: clock.Now().UTC(),
		Records:     records,
	}
}
