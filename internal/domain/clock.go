package domain

import "time"

// Clock supplies the transaction commit time. The engine never reads the
// wall clock directly: every due-time comparison in the scheduler uses the
// committing transaction's clock reading, so a deterministic Clock makes the
// whole engine deterministic.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
