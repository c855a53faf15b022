package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// SymmetricKeySize is the length of an ephemeral per-chunk key.
const SymmetricKeySize = 32

// SealedKeySize is the fixed width of a symmetric key sealed to a peer's
// public key: the key itself plus the anonymous box overhead.
const SealedKeySize = SymmetricKeySize + box.AnonymousOverhead

// ErrOpenKey indicates a sealed key could not be recovered with our private key.
var ErrOpenKey = errors.New("sealed key authentication failed")

// SymmetricKey is a single-use key protecting exactly one chunk or handshake
// message. Callers wipe it with ZeroBytes once the ciphertext is built.
type SymmetricKey [SymmetricKeySize]byte

// GenerateSymmetricKey returns a fresh random key.
func GenerateSymmetricKey() (*SymmetricKey, error) {
	var key SymmetricKey
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("generate symmetric key: %w", err)
	}
	return &key, nil
}

// SealKey encrypts key to recipient using an anonymous NaCl box. The output is
// always SealedKeySize bytes.
func SealKey(key *SymmetricKey, recipient *[32]byte) ([]byte, error) {
	if key == nil || recipient == nil {
		return nil, errors.New("seal key: nil key or recipient")
	}
	sealed, err := box.SealAnonymous(nil, key[:], recipient, rand.Reader)
	if err != nil {
		NewLogger("SealKey").
			WithFields(SecureFieldHash(recipient[:], "recipient")).
			WithError(err, "box.SealAnonymous").
			Warn("Failed to seal symmetric key")
		return nil, fmt.Errorf("seal key: %w", err)
	}
	return sealed, nil
}

// OpenKey recovers a symmetric key sealed to kp.
func OpenKey(sealed []byte, kp *KeyPair) (*SymmetricKey, error) {
	if len(sealed) != SealedKeySize {
		return nil, fmt.Errorf("%w: sealed key is %d bytes, want %d", ErrOpenKey, len(sealed), SealedKeySize)
	}
	out, ok := box.OpenAnonymous(nil, sealed, &kp.Public, &kp.Private)
	if !ok {
		NewLogger("OpenKey").
			WithField("sealed_size", len(sealed)).
			WithError(ErrOpenKey, "box.OpenAnonymous").
			Debug("Sealed key not addressed to this key pair")
		return nil, ErrOpenKey
	}
	var key SymmetricKey
	copy(key[:], out)
	ZeroBytes(out)
	return &key, nil
}
