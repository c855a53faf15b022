package crypto

import "time"

// TimeProvider abstracts time operations for deterministic testing.
// Implementations must be safe for concurrent use.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the duration since the given time.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

// OrDefault returns tp, or DefaultTimeProvider when tp is nil.
func OrDefault(tp TimeProvider) TimeProvider {
	if tp == nil {
		return DefaultTimeProvider{}
	}
	return tp
}
