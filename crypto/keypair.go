package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// PublicKeySize is the length of a raw Curve25519 public key on the wire.
const PublicKeySize = 32

// KeyPair represents the long-lived Curve25519 key pair owned by one
// transport actor. The private half never leaves the actor.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateKeyPair creates a new random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	publicKey, privateKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}

	keyPair := &KeyPair{
		Public:  *publicKey,
		Private: *privateKey,
	}

	NewLogger("GenerateKeyPair").
		WithFields(SecureFieldHash(keyPair.Public[:], "public_key")).
		Debug("Generated session key pair")

	return keyPair, nil
}

// FromSecretKey rebuilds a key pair from an existing private key, deriving
// the public half by scalar multiplication with the curve base point.
func FromSecretKey(secretKey [32]byte) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, errors.New("invalid secret key: all zeros")
	}

	pub, err := curve25519.X25519(secretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}

	keyPair := &KeyPair{Private: secretKey}
	copy(keyPair.Public[:], pub)
	return keyPair, nil
}

// PublicKeyFromBytes validates raw public key material received from a peer.
func PublicKeyFromBytes(b []byte) (*[32]byte, error) {
	if len(b) != PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", PublicKeySize, len(b))
	}
	var pk [32]byte
	copy(pk[:], b)
	if isZeroKey(pk) {
		return nil, errors.New("invalid public key: all zeros")
	}
	return &pk, nil
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [32]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
