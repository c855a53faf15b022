package frame

import (
	"fmt"

	"github.com/opd-ai/securesocket/crypto"
	"github.com/opd-ai/securesocket/limits"
	"github.com/opd-ai/securesocket/protocol"
	"github.com/sirupsen/logrus"
)

// Encoder buffers outbound messages and control tokens and turns them into
// encrypted chunks addressed to one recipient.
type Encoder struct {
	proto     *protocol.Protocol
	opts      Options
	recipient *[32]byte
	endToken  []byte
	buf       []byte
	nextSeq   uint64
}

// NewEncoder creates an encoder. A chunk size too small to carry the fixed
// metadata plus one plaintext byte is a configuration error.
func NewEncoder(proto *protocol.Protocol, opts Options) (*Encoder, error) {
	if proto == nil {
		return nil, fmt.Errorf("%w: nil protocol", ErrConfiguration)
	}
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	end, err := proto.Encode(protocol.EventEnd, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return &Encoder{
		proto:    proto,
		opts:     opts,
		endToken: []byte(end),
		nextSeq:  1,
	}, nil
}

// SetRecipient sets the public key chunk keys are sealed to.
func (e *Encoder) SetRecipient(pub *[32]byte) {
	if pub == nil {
		e.recipient = nil
		return
	}
	pk := *pub
	e.recipient = &pk
}

// HasRecipient reports whether Flush can seal chunks.
func (e *Encoder) HasRecipient() bool { return e.recipient != nil }

// ChunkSize returns the configured frame size.
func (e *Encoder) ChunkSize() int { return e.opts.ChunkSize }

// Buffered returns the number of bytes waiting to be flushed.
func (e *Encoder) Buffered() int { return len(e.buf) }

// EnqueueMessage appends payload followed by the end token.
func (e *Encoder) EnqueueMessage(payload []byte) error {
	if err := limits.ValidatePayload(payload); err != nil {
		return err
	}
	e.buf = append(e.buf, payload...)
	e.buf = append(e.buf, e.endToken...)
	return nil
}

// EnqueueControl appends the token for a control event.
func (e *Encoder) EnqueueControl(name, argument string) error {
	token, err := e.proto.Encode(name, argument)
	if err != nil {
		return err
	}
	e.buf = append(e.buf, token...)
	return nil
}

// Reset discards buffered bytes without sending them.
func (e *Encoder) Reset() {
	crypto.ZeroBytes(e.buf)
	e.buf = e.buf[:0]
}

// Flush drains the whole buffer into chunks. It is atomic: on error the
// buffer and sequence counter are left untouched and no chunks are returned.
// An empty buffer yields no chunks.
func (e *Encoder) Flush() ([][]byte, error) {
	if len(e.buf) == 0 {
		return nil, nil
	}
	if e.recipient == nil {
		return nil, ErrNoRecipient
	}

	maxSegment := limits.MaxSegment(e.opts.ChunkSize, e.opts.Suite)
	seq := e.nextSeq
	chunks := make([][]byte, 0, len(e.buf)/maxSegment+1)

	rest := e.buf
	for len(rest) > 0 {
		n := len(rest)
		if n > maxSegment {
			n = maxSegment
		}
		chunk, used, err := e.sealSegment(rest, n, seq)
		if err != nil {
			e.opts.Logger.WithFields(logrus.Fields{
				"function": "Encoder.Flush",
				"sequence": seq,
				"buffered": len(e.buf),
				"error":    err.Error(),
			}).Error("Failed to seal chunk, buffer kept")
			return nil, err
		}
		chunks = append(chunks, chunk)
		rest = rest[used:]
		seq++
	}

	e.opts.Logger.WithFields(logrus.Fields{
		"function":   "Encoder.Flush",
		"chunks":     len(chunks),
		"bytes":      len(e.buf),
		"first_seq":  e.nextSeq,
		"chunk_size": e.opts.ChunkSize,
	}).Debug("Flushed encoder buffer")

	crypto.ZeroBytes(e.buf)
	e.buf = e.buf[:0]
	e.nextSeq = seq
	return chunks, nil
}

// sealSegment encrypts up to n bytes of rest into one chunk and reports how
// many bytes it consumed. If the ciphertext overflows the frame the segment
// shrinks and is retried; n strictly decreases, so the loop terminates.
func (e *Encoder) sealSegment(rest []byte, n int, seq uint64) ([]byte, int, error) {
	maxCiphertext := limits.MaxCiphertext(e.opts.ChunkSize)
	for n > 0 {
		key, err := crypto.GenerateSymmetricKey()
		if err != nil {
			return nil, 0, err
		}

		plain := appendTrailer(rest[:n], seq, e.opts.TimeProvider.Now())
		ciphertext, err := e.opts.Suite.Seal(key, plain)
		crypto.ZeroBytes(plain)
		if err != nil {
			crypto.WipeSymmetricKey(key)
			return nil, 0, err
		}

		if len(ciphertext) > maxCiphertext {
			crypto.WipeSymmetricKey(key)
			n = shrink(n)
			continue
		}

		sealedKey, err := crypto.SealKey(key, e.recipient)
		crypto.WipeSymmetricKey(key)
		if err != nil {
			return nil, 0, err
		}

		chunk, err := assemble(e.opts.ChunkSize, ciphertext, sealedKey)
		if err != nil {
			return nil, 0, err
		}
		return chunk, n, nil
	}
	return nil, 0, fmt.Errorf("%w: no segment fits a %d byte chunk", ErrConfiguration, e.opts.ChunkSize)
}

// shrink returns a strictly smaller segment length.
func shrink(n int) int {
	next := n * 9 / 10
	if next >= n {
		next = n - 1
	}
	return next
}
