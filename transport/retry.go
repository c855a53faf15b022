package transport

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRetryDelay is the fixed pause between connection attempts.
const DefaultRetryDelay = 5 * time.Second

// RetryConfig controls bind and dial retries. MaxAttempts of zero retries
// until the context is cancelled. A zero Delay means DefaultRetryDelay and a
// negative Delay retries without pausing.
type RetryConfig struct {
	Delay       time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      bool
	MaxAttempts int
}

// DefaultRetryConfig returns a fixed 5 second delay with unbounded attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Delay:      DefaultRetryDelay,
		Multiplier: 1.0,
	}
}

// NextDelay returns the pause after failed attempt N (1-based).
func (c RetryConfig) NextDelay(attempt int, rng *rand.Rand) time.Duration {
	if c.Delay <= 0 {
		return 0
	}
	if c.Multiplier < 1.0 {
		c.Multiplier = 1.0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(c.Delay) * math.Pow(c.Multiplier, float64(attempt-1))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// retry runs op until it succeeds, the attempt budget is spent, or ctx ends.
// It returns the last op error, or ctx.Err() when cancelled while waiting.
func retry(ctx context.Context, cfg RetryConfig, log *logrus.Entry, op string, fn func() error) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return err
		}

		delay := cfg.NextDelay(attempt, rng)
		log.WithFields(logrus.Fields{
			"operation": op,
			"attempt":   attempt,
			"delay":     delay,
			"error":     err.Error(),
		}).Warn("Attempt failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
