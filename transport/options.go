package transport

import (
	"fmt"
	"time"

	"github.com/opd-ai/securesocket/crypto"
	"github.com/opd-ai/securesocket/frame"
	"github.com/opd-ai/securesocket/limits"
	"github.com/opd-ai/securesocket/protocol"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultHandshakeTimeout bounds the key exchange after a connection opens.
	DefaultHandshakeTimeout = 10 * time.Second
	// DefaultWriteTimeout bounds a single chunk write.
	DefaultWriteTimeout = 5 * time.Second
	// DefaultRateBurst is the number of back-to-back chunks admitted when
	// rate limiting is enabled.
	DefaultRateBurst = 64
)

// Options contains configuration for a Server or Client. Both peers must use
// the same Protocol, ChunkSize, and Suite.
type Options struct {
	// Protocol is the shared control-token configuration. Required.
	Protocol *protocol.Protocol

	ChunkSize       int
	Suite           crypto.Suite
	TimeWindow      time.Duration
	FutureTolerance time.Duration

	// MinChunkInterval enables inbound rate limiting when positive. Chunks
	// refill one token per interval and RateBurst tokens may be spent back
	// to back. A RateBurst of zero admits at most one chunk per interval.
	MinChunkInterval time.Duration
	RateBurst        int

	Retry            RetryConfig
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// PrivateKey overrides the generated long-term key.
	PrivateKey *[32]byte

	// Prompt answers "input" requests from the peer. Without it the request is
	// only surfaced as an event.
	Prompt func(prompt string) string
	// OnMessage and OnEvent run on the read loop goroutine.
	OnMessage func(text []byte)
	OnEvent   func(ev protocol.ControlEvent)

	TimeProvider crypto.TimeProvider
	Logger       *logrus.Logger
}

// NewOptions returns options with default codec geometry, a fixed 5 second
// retry delay, and rate limiting disabled. Protocol must still be set.
func NewOptions() *Options {
	return &Options{
		ChunkSize:        limits.DefaultChunkSize,
		Suite:            crypto.DefaultSuite,
		TimeWindow:       frame.DefaultTimeWindow,
		FutureTolerance:  frame.DefaultFutureTolerance,
		RateBurst:        DefaultRateBurst,
		Retry:            DefaultRetryConfig(),
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
	}
}

// frameOptions projects the codec settings. Codec diagnostics go to log.
func (o *Options) frameOptions(log *logrus.Entry) frame.Options {
	return frame.Options{
		ChunkSize:       o.ChunkSize,
		Suite:           o.Suite,
		TimeWindow:      o.TimeWindow,
		FutureTolerance: o.FutureTolerance,
		TimeProvider:    o.TimeProvider,
		Logger:          log,
	}
}

// normalized returns a private copy with defaults applied.
func (o *Options) normalized() (*Options, error) {
	if o == nil {
		o = NewOptions()
	}
	c := *o
	if c.Protocol == nil {
		return nil, fmt.Errorf("%w: protocol is required", ErrConfiguration)
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = limits.DefaultChunkSize
	}
	suite, err := crypto.ParseSuite(string(c.Suite))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	c.Suite = suite
	if err := limits.ValidateChunkSize(c.ChunkSize, c.Suite); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout < 0 {
		return nil, fmt.Errorf("%w: negative write timeout", ErrConfiguration)
	}
	if c.Retry.Delay == 0 {
		c.Retry.Delay = DefaultRetryDelay
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 1.0
	}
	if c.RateBurst < 0 {
		return nil, fmt.Errorf("%w: negative rate burst", ErrConfiguration)
	}
	c.TimeProvider = crypto.OrDefault(c.TimeProvider)
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return &c, nil
}
