package frame

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/opd-ai/securesocket/crypto"
	"github.com/sirupsen/logrus"
)

// Stats counts decoder outcomes. Safe to read from any goroutine.
type Stats struct {
	Accepted         uint64
	DecryptionErrors uint64
	ReplayErrors     uint64
}

// Decoder opens chunks sealed to its key pair and enforces replay protection.
type Decoder struct {
	keys  *crypto.KeyPair
	opts  Options
	state SequenceState

	accepted  atomic.Uint64
	decryptEr atomic.Uint64
	replayEr  atomic.Uint64
}

// NewDecoder creates a decoder for chunks sealed to keys.
func NewDecoder(keys *crypto.KeyPair, opts Options) (*Decoder, error) {
	if keys == nil {
		return nil, fmt.Errorf("%w: nil key pair", ErrConfiguration)
	}
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	return &Decoder{
		keys: keys,
		opts: opts,
		state: SequenceState{
			TimeWindow:      opts.TimeWindow,
			FutureTolerance: opts.FutureTolerance,
			log:             opts.Logger,
		},
	}, nil
}

// ChunkSize returns the configured frame size.
func (d *Decoder) ChunkSize() int { return d.opts.ChunkSize }

// LastAccepted returns the highest accepted sequence number.
func (d *Decoder) LastAccepted() uint64 { return d.state.LastAccepted }

// Stats returns a snapshot of the counters.
func (d *Decoder) Stats() Stats {
	return Stats{
		Accepted:         d.accepted.Load(),
		DecryptionErrors: d.decryptEr.Load(),
		ReplayErrors:     d.replayEr.Load(),
	}
}

// AcceptChunk decrypts and validates one chunk and returns its segment.
// Errors wrap ErrDecryption or ErrReplay; in both cases the decoder state is
// unchanged and the caller may keep feeding chunks.
func (d *Decoder) AcceptChunk(raw []byte) ([]byte, error) {
	segment, seq, ts, err := d.open(raw)
	if err != nil {
		d.decryptEr.Add(1)
		d.opts.Logger.WithFields(logrus.Fields{
			"function": "Decoder.AcceptChunk",
			"size":     len(raw),
			"error":    err.Error(),
		}).Warn("Dropping undecryptable chunk")
		return nil, err
	}
	if err := d.state.Check(seq, ts, d.opts.TimeProvider.Now()); err != nil {
		d.replayEr.Add(1)
		return nil, err
	}
	d.state.Commit(seq)
	d.accepted.Add(1)
	return segment, nil
}

// open performs the cryptographic half of AcceptChunk.
func (d *Decoder) open(raw []byte) ([]byte, uint64, time.Time, error) {
	ciphertext, sealedKey, err := split(d.opts.ChunkSize, raw)
	if err != nil {
		return nil, 0, time.Time{}, err
	}
	key, err := crypto.OpenKey(sealedKey, d.keys)
	if err != nil {
		return nil, 0, time.Time{}, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	plain, err := d.opts.Suite.Open(key, ciphertext)
	crypto.WipeSymmetricKey(key)
	if err != nil {
		return nil, 0, time.Time{}, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return parseTrailer(plain)
}
