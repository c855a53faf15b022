package limits

import (
	"errors"
	"fmt"

	"github.com/opd-ai/securesocket/crypto"
)

const (
	// LengthFieldSize is the trailing big-endian ciphertext length field.
	LengthFieldSize = 2

	// SealedKeySize is the fixed width of the wrapped per-chunk key.
	SealedKeySize = crypto.SealedKeySize

	// SequenceSize and TimestampSize make up the trailer appended to every
	// chunk plaintext before encryption.
	SequenceSize  = 8
	TimestampSize = 8
	TrailerSize   = SequenceSize + TimestampSize

	// DefaultChunkSize matches the frame size used by existing peers.
	DefaultChunkSize = 1024

	// MaxChunkSize keeps the ciphertext region addressable by the
	// 2-byte length field.
	MaxChunkSize = 64 * 1024

	// MaxMessageSize bounds a single enqueued payload (1MB) to prevent
	// memory exhaustion.
	MaxMessageSize = 1024 * 1024
)

var (
	// ErrChunkTooSmall indicates the chunk cannot hold its fixed metadata
	// plus one plaintext byte.
	ErrChunkTooSmall = errors.New("chunk size too small")

	// ErrChunkTooLarge indicates the ciphertext region would overflow the
	// length field.
	ErrChunkTooLarge = errors.New("chunk size too large")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// FrameOverhead is the fixed per-chunk cost outside the ciphertext region.
func FrameOverhead() int {
	return SealedKeySize + LengthFieldSize
}

// MaxCiphertext is the largest ciphertext region a chunk of chunkSize holds.
func MaxCiphertext(chunkSize int) int {
	return chunkSize - FrameOverhead()
}

// MaxSegment is the largest plaintext segment that fits one chunk once the
// suite overhead and trailer are added.
func MaxSegment(chunkSize int, suite crypto.Suite) int {
	return MaxCiphertext(chunkSize) - suite.Overhead() - TrailerSize
}

// MinChunkSize is the smallest viable chunk for suite: all fixed-width
// metadata plus one plaintext byte.
func MinChunkSize(suite crypto.Suite) int {
	return FrameOverhead() + suite.Overhead() + TrailerSize + 1
}

// ValidateChunkSize checks chunkSize against the geometry of suite.
func ValidateChunkSize(chunkSize int, suite crypto.Suite) error {
	if minSize := MinChunkSize(suite); chunkSize < minSize {
		return fmt.Errorf("%w: %d < %d for suite %s", ErrChunkTooSmall, chunkSize, minSize, suite.Normalize())
	}
	if chunkSize > MaxChunkSize {
		return fmt.Errorf("%w: %d > %d", ErrChunkTooLarge, chunkSize, MaxChunkSize)
	}
	return nil
}

// ValidatePayload validates an outbound payload against MaxMessageSize.
// Empty payloads are valid messages.
func ValidatePayload(payload []byte) error {
	if len(payload) > MaxMessageSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(payload), MaxMessageSize)
	}
	return nil
}
