package protocol

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"
)

// ControlEvent is a decoded control token. An empty Argument means the token
// carried no argument.
type ControlEvent struct {
	Name     string
	Argument string
}

// HasArgument reports whether the token carried an argument.
func (e ControlEvent) HasArgument() bool { return e.Argument != "" }

func (e ControlEvent) String() string {
	if e.HasArgument() {
		return fmt.Sprintf("ControlEvent(%s, %q)", e.Name, e.Argument)
	}
	return fmt.Sprintf("ControlEvent(%s)", e.Name)
}

// Protocol encodes and decodes control tokens for one session.
// It is safe for concurrent use.
type Protocol struct {
	cfg     Config
	marker  []byte
	reverse map[string]string // wire token -> event name
}

// New creates a Protocol with default delimiters and a fresh comm code.
func New() (*Protocol, error) {
	cfg, err := DefaultConfig()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

// NewWithConfig validates cfg and builds a Protocol from a private copy of it.
func NewWithConfig(cfg Config) (*Protocol, error) {
	cfg = cfg.clone()
	lowered := make(map[string]string, len(cfg.ControlTable))
	for name, wire := range cfg.ControlTable {
		lowered[strings.ToLower(name)] = wire
	}
	cfg.ControlTable = lowered

	if err := cfg.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewWithConfig",
			"package":  "protocol",
			"error":    err.Error(),
		}).Error("Rejected protocol configuration")
		return nil, err
	}

	p := &Protocol{
		cfg:     cfg,
		marker:  []byte(cfg.Start + cfg.CommCode + cfg.Separator),
		reverse: make(map[string]string, len(cfg.ControlTable)),
	}
	for name, wire := range cfg.ControlTable {
		p.reverse[wire] = name
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewWithConfig",
		"package":  "protocol",
		"events":   len(cfg.ControlTable),
	}).Debug("Protocol configured")

	return p, nil
}

// Config returns a copy of the configuration.
func (p *Protocol) Config() Config { return p.cfg.clone() }

// Delimiters returns the start and end markers.
func (p *Protocol) Delimiters() (start, end string) {
	return p.cfg.Start, p.cfg.End
}

// Marker returns start+comm_code+sep, the prefix every genuine token begins with.
func (p *Protocol) Marker() []byte {
	out := make([]byte, len(p.marker))
	copy(out, p.marker)
	return out
}

// Encode renders the token for event name with an optional argument.
func (p *Protocol) Encode(name, argument string) (string, error) {
	wire, ok := p.cfg.ControlTable[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	if strings.Contains(argument, p.cfg.End) {
		return "", fmt.Errorf("%w: argument contains end delimiter %q", ErrInvalidArgument, p.cfg.End)
	}

	var b strings.Builder
	b.Grow(len(p.marker) + len(wire) + len(p.cfg.Separator) + len(argument) + len(p.cfg.End))
	b.Write(p.marker)
	b.WriteString(wire)
	if argument != "" {
		b.WriteString(p.cfg.Separator)
		b.WriteString(argument)
	}
	b.WriteString(p.cfg.End)
	return b.String(), nil
}

// MustEncode is Encode for the built-in vocabulary; it panics on error.
func (p *Protocol) MustEncode(name string) string {
	token, err := p.Encode(name, "")
	if err != nil {
		panic(err)
	}
	return token
}

// Decode parses a delimiter-bounded candidate. It returns ErrMalformedToken
// when either marker is missing, ErrInvalidKey when the embedded secret does
// not match, and ErrInvalidControlCode for an unknown wire token.
func (p *Protocol) Decode(candidate string) (ControlEvent, error) {
	start, end := p.cfg.Start, p.cfg.End
	if len(candidate) < len(start)+len(end) ||
		!strings.HasPrefix(candidate, start) || !strings.HasSuffix(candidate, end) {
		return ControlEvent{}, ErrMalformedToken
	}
	inner := candidate[len(start) : len(candidate)-len(end)]

	code := p.cfg.CommCode
	if len(inner) < len(code) ||
		subtle.ConstantTimeCompare([]byte(inner[:len(code)]), []byte(code)) != 1 ||
		!strings.HasPrefix(inner[len(code):], p.cfg.Separator) {
		return ControlEvent{}, ErrInvalidKey
	}

	rest := inner[len(code)+len(p.cfg.Separator):]
	wire, argument, _ := strings.Cut(rest, p.cfg.Separator)
	name, ok := p.reverse[wire]
	if !ok {
		return ControlEvent{}, ErrInvalidControlCode
	}
	return ControlEvent{Name: name, Argument: argument}, nil
}

// IsImmediate reports whether an event is surfaced as soon as it is decoded
// rather than attached to the next message.
func (p *Protocol) IsImmediate(name string) bool {
	return name == EventShutdown || name == EventInput
}

// IsTerminal reports whether an event ends the session.
func (p *Protocol) IsTerminal(name string) bool {
	return name == EventShutdown
}

// Serialize encodes the configuration as JSON.
func (p *Protocol) Serialize() ([]byte, error) {
	return json.Marshal(p.cfg)
}

// Deserialize rebuilds a Protocol from Serialize output.
func Deserialize(data []byte) (*Protocol, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return NewWithConfig(cfg)
}

// MarshalBinary encodes the configuration as deterministic CBOR.
func (p *Protocol) MarshalBinary() ([]byte, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return em.Marshal(p.cfg)
}

// UnmarshalBinary replaces p with the configuration in CBOR data.
func (p *Protocol) UnmarshalBinary(data []byte) error {
	var cfg Config
	if err := cbor.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	q, err := NewWithConfig(cfg)
	if err != nil {
		return err
	}
	*p = *q
	return nil
}
