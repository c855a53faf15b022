package transport

import (
	"time"

	"github.com/opd-ai/securesocket/crypto"
	"golang.org/x/time/rate"
)

// chunkLimiter drops inbound chunks that arrive faster than one per interval
// after the burst is spent. A nil limiter admits everything.
type chunkLimiter struct {
	lim   *rate.Limiter
	clock crypto.TimeProvider
}

func newChunkLimiter(interval time.Duration, burst int, clock crypto.TimeProvider) *chunkLimiter {
	if interval <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &chunkLimiter{
		lim:   rate.NewLimiter(rate.Every(interval), burst),
		clock: crypto.OrDefault(clock),
	}
}

func (l *chunkLimiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.lim.AllowN(l.clock.Now(), 1)
}
