package frame

import "errors"

var (
	// ErrConfiguration indicates codec options that cannot produce valid chunks.
	ErrConfiguration = errors.New("invalid codec configuration")

	// ErrDecryption indicates a corrupt, truncated, or undecryptable chunk.
	ErrDecryption = errors.New("chunk decryption failed")

	// ErrReplay indicates a stale, future-dated, replayed, or out-of-order chunk.
	ErrReplay = errors.New("chunk rejected by replay protection")

	// ErrNoRecipient is returned by Flush before the peer's public key is known.
	ErrNoRecipient = errors.New("no recipient public key")
)
