package frame

import (
	"fmt"
	"time"

	"github.com/opd-ai/securesocket/crypto"
	"github.com/opd-ai/securesocket/limits"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeWindow is the maximum accepted age of a chunk.
	DefaultTimeWindow = 5 * time.Minute
	// DefaultFutureTolerance is the maximum accepted clock lead of a sender.
	DefaultFutureTolerance = time.Second
)

// Options configures both halves of the codec. Peers must agree on
// ChunkSize and Suite.
type Options struct {
	ChunkSize       int
	Suite           crypto.Suite
	TimeWindow      time.Duration
	FutureTolerance time.Duration
	TimeProvider    crypto.TimeProvider

	// Logger receives per-chunk diagnostics. Nil logs to the logrus
	// standard logger.
	Logger *logrus.Entry
}

// DefaultOptions returns the codec defaults.
func DefaultOptions() Options {
	return Options{
		ChunkSize:       limits.DefaultChunkSize,
		Suite:           crypto.DefaultSuite,
		TimeWindow:      DefaultTimeWindow,
		FutureTolerance: DefaultFutureTolerance,
	}
}

// normalize fills zero values with defaults and validates the geometry.
func (o Options) normalize() (Options, error) {
	if o.ChunkSize == 0 {
		o.ChunkSize = limits.DefaultChunkSize
	}
	suite, err := crypto.ParseSuite(string(o.Suite))
	if err != nil {
		return o, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	o.Suite = suite
	if err := limits.ValidateChunkSize(o.ChunkSize, o.Suite); err != nil {
		return o, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if o.TimeWindow <= 0 {
		o.TimeWindow = DefaultTimeWindow
	}
	if o.FutureTolerance < 0 {
		return o, fmt.Errorf("%w: negative future tolerance", ErrConfiguration)
	}
	if o.FutureTolerance == 0 {
		o.FutureTolerance = DefaultFutureTolerance
	}
	o.TimeProvider = crypto.OrDefault(o.TimeProvider)
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return o, nil
}
