package securesocket

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/opd-ai/securesocket/crypto"
	"github.com/opd-ai/securesocket/protocol"
	"github.com/opd-ai/securesocket/transport"
)

// FileConfig is the TOML layout both peers load. The [protocol] section is
// the shared secret and must be distributed out of band.
type FileConfig struct {
	Protocol  protocol.Config `toml:"protocol"`
	Transport TransportConfig `toml:"transport"`
}

// TransportConfig holds the tunable transport settings. Durations use
// time.ParseDuration syntax.
type TransportConfig struct {
	ChunkSize        int    `toml:"chunk_size"`
	Suite            string `toml:"suite"`
	TimeWindow       string `toml:"time_window"`
	FutureTolerance  string `toml:"future_tolerance"`
	MinChunkInterval string `toml:"min_chunk_interval"`
	RateBurst        int    `toml:"rate_burst"`
	RetryDelay       string `toml:"retry_delay"`
	RetryAttempts    int    `toml:"retry_attempts"`
	HandshakeTimeout string `toml:"handshake_timeout"`
}

// GenerateConfig returns a configuration with a fresh comm code and the
// transport defaults written out explicitly.
func GenerateConfig() (FileConfig, error) {
	pcfg, err := protocol.DefaultConfig()
	if err != nil {
		return FileConfig{}, err
	}
	opts := transport.NewOptions()
	return FileConfig{
		Protocol: pcfg,
		Transport: TransportConfig{
			ChunkSize:        opts.ChunkSize,
			Suite:            string(opts.Suite),
			TimeWindow:       opts.TimeWindow.String(),
			FutureTolerance:  opts.FutureTolerance.String(),
			MinChunkInterval: opts.MinChunkInterval.String(),
			RateBurst:        opts.RateBurst,
			RetryDelay:       opts.Retry.Delay.String(),
			RetryAttempts:    opts.Retry.MaxAttempts,
			HandshakeTimeout: opts.HandshakeTimeout.String(),
		},
	}, nil
}

// WriteConfig encodes cfg as TOML.
func WriteConfig(w io.Writer, cfg FileConfig) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LoadConfig reads a TOML file and overlays it on the transport defaults.
func LoadConfig(path string) (*Options, error) {
	var raw FileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return raw.options(meta.IsDefined)
}

// DecodeConfig is LoadConfig for an in-memory document.
func DecodeConfig(data string) (*Options, error) {
	var raw FileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return raw.options(meta.IsDefined)
}

// Options builds transport options from every field of c.
func (c FileConfig) Options() (*Options, error) {
	return c.options(func(...string) bool { return true })
}

func (c FileConfig) options(defined func(key ...string) bool) (*Options, error) {
	if !defined("protocol") {
		return nil, fmt.Errorf("load config: %w: missing [protocol] section", protocol.ErrConfiguration)
	}
	proto, err := protocol.NewWithConfig(c.Protocol)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	opts := transport.NewOptions()
	opts.Protocol = proto
	t := c.Transport

	if defined("transport", "chunk_size") {
		opts.ChunkSize = t.ChunkSize
	}
	if defined("transport", "suite") {
		suite, err := crypto.ParseSuite(t.Suite)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		opts.Suite = suite
	}
	if defined("transport", "rate_burst") {
		opts.RateBurst = t.RateBurst
	}
	if defined("transport", "retry_attempts") {
		opts.Retry.MaxAttempts = t.RetryAttempts
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"time_window", t.TimeWindow, &opts.TimeWindow},
		{"future_tolerance", t.FutureTolerance, &opts.FutureTolerance},
		{"min_chunk_interval", t.MinChunkInterval, &opts.MinChunkInterval},
		{"retry_delay", t.RetryDelay, &opts.Retry.Delay},
		{"handshake_timeout", t.HandshakeTimeout, &opts.HandshakeTimeout},
	}
	for _, d := range durations {
		if !defined("transport", d.key) || strings.TrimSpace(d.raw) == "" {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return nil, fmt.Errorf("load config: transport.%s: %w", d.key, err)
		}
		*d.dst = v
	}
	return opts, nil
}
