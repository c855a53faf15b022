package protocol

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// Event names with built-in meaning.
const (
	EventEnd      = "end"
	EventShutdown = "shutdown"
	EventInput    = "input"
)

// Defaults for a freshly generated configuration.
const (
	DefaultCommCodeLength = 50
	DefaultStart          = "["
	DefaultEnd            = "]"
	DefaultSeparator      = "::"
)

// Config is the serializable protocol configuration. It is immutable once a
// Protocol has been built from it.
type Config struct {
	CommCode     string            `json:"comm_code" cbor:"comm_code" toml:"comm_code"`
	Separator    string            `json:"sep" cbor:"sep" toml:"sep"`
	Start        string            `json:"start" cbor:"start" toml:"start"`
	End          string            `json:"end" cbor:"end" toml:"end"`
	ControlTable map[string]string `json:"control_table" cbor:"control_table" toml:"control_table"`
}

// DefaultControlTable returns the built-in event name to wire token mapping.
func DefaultControlTable() map[string]string {
	return map[string]string{
		EventEnd:      "NEWLINE",
		EventShutdown: "SHUTDOWN 0xC000013A",
		EventInput:    "IN",
	}
}

// DefaultConfig returns the default delimiters and table with a fresh comm code.
func DefaultConfig() (Config, error) {
	code, err := GenerateCommCode(DefaultCommCodeLength)
	if err != nil {
		return Config{}, err
	}
	return Config{
		CommCode:     code,
		Separator:    DefaultSeparator,
		Start:        DefaultStart,
		End:          DefaultEnd,
		ControlTable: DefaultControlTable(),
	}, nil
}

// GenerateCommCode returns a random URL-safe base64 string of the given length.
// The alphabet never collides with the default delimiters.
func GenerateCommCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("%w: comm code length %d", ErrConfiguration, length)
	}
	raw := make([]byte, (length*3)/4+3)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate comm code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}

// clone deep-copies the control table.
func (c Config) clone() Config {
	out := c
	out.ControlTable = make(map[string]string, len(c.ControlTable))
	for k, v := range c.ControlTable {
		out.ControlTable[k] = v
	}
	return out
}

// Validate reports whether the configuration can produce unambiguous tokens.
func (c Config) Validate() error {
	switch {
	case c.CommCode == "":
		return fmt.Errorf("%w: empty comm code", ErrConfiguration)
	case c.Start == "" || c.End == "" || c.Separator == "":
		return fmt.Errorf("%w: empty delimiter", ErrConfiguration)
	}

	for _, d := range []string{c.Start, c.End, c.Separator} {
		if strings.Contains(c.CommCode, d) {
			return fmt.Errorf("%w: comm code contains delimiter %q", ErrConfiguration, d)
		}
	}

	if _, ok := c.ControlTable[EventEnd]; !ok {
		return fmt.Errorf("%w: control table has no %q event", ErrConfiguration, EventEnd)
	}

	seen := make(map[string]string, len(c.ControlTable))
	for name, wire := range c.ControlTable {
		if name == "" || name != strings.ToLower(name) {
			return fmt.Errorf("%w: event name %q must be non-empty lower case", ErrConfiguration, name)
		}
		if wire == "" {
			return fmt.Errorf("%w: event %q has an empty wire token", ErrConfiguration, name)
		}
		for _, d := range []string{c.Start, c.End, c.Separator} {
			if strings.Contains(wire, d) {
				return fmt.Errorf("%w: wire token %q contains delimiter %q", ErrConfiguration, wire, d)
			}
		}
		if other, dup := seen[wire]; dup {
			return fmt.Errorf("%w: events %q and %q share wire token %q", ErrConfiguration, other, name, wire)
		}
		seen[wire] = name
	}
	return nil
}
