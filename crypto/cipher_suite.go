package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/flynn/noise"
	"golang.org/x/crypto/nacl/secretbox"
)

// Nonce is a 24-byte value used by the secretbox suite.
type Nonce [24]byte

// GenerateNonce creates a cryptographically secure random nonce.
func GenerateNonce() (Nonce, error) {
	var nonce Nonce
	if _, err := rand.Read(nonce[:]); err != nil {
		return Nonce{}, err
	}
	return nonce, nil
}

// Suite names the authenticated symmetric cipher used for chunk bodies and
// the handshake. Both peers must be configured with the same suite.
type Suite string

const (
	// SuiteSecretBox is NaCl secretbox (XSalsa20-Poly1305) with a random
	// nonce prefixed to the ciphertext.
	SuiteSecretBox Suite = "secretbox"
	// SuiteChaChaPoly is the Noise ChaCha20-Poly1305 cipher function.
	SuiteChaChaPoly Suite = "chachapoly"
	// SuiteAESGCM is the Noise AES-256-GCM cipher function.
	SuiteAESGCM Suite = "aesgcm"

	// DefaultSuite is used when no suite is configured.
	DefaultSuite = SuiteSecretBox
)

// ErrUnsupportedSuite is returned for unknown suite names.
var ErrUnsupportedSuite = errors.New("unsupported cipher suite")

// ErrAuthentication indicates a ciphertext failed authentication.
var ErrAuthentication = errors.New("message authentication failed")

// SupportedSuites lists all suites in order of preference.
var SupportedSuites = []Suite{SuiteSecretBox, SuiteChaChaPoly, SuiteAESGCM}

// ParseSuite resolves a configured suite name. The empty string selects
// DefaultSuite.
func ParseSuite(name string) (Suite, error) {
	s := Suite(strings.ToLower(strings.TrimSpace(name)))
	if s == "" {
		return DefaultSuite, nil
	}
	for _, known := range SupportedSuites {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedSuite, name)
}

// Normalize maps the zero value to DefaultSuite.
func (s Suite) Normalize() Suite {
	if s == "" {
		return DefaultSuite
	}
	return s
}

// Overhead reports how many bytes Seal adds to a plaintext.
func (s Suite) Overhead() int {
	switch s.Normalize() {
	case SuiteSecretBox:
		return len(Nonce{}) + secretbox.Overhead
	default:
		// Poly1305 / GCM tag; the nonce is implicit.
		return 16
	}
}

// noiseCipher returns the Noise cipher function backing an AEAD suite.
func (s Suite) noiseCipher() (noise.CipherFunc, error) {
	switch s.Normalize() {
	case SuiteChaChaPoly:
		return noise.CipherChaChaPoly, nil
	case SuiteAESGCM:
		return noise.CipherAESGCM, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSuite, string(s))
	}
}

// Seal encrypts and authenticates plaintext under a single-use key.
// AEAD suites use nonce 0, which is safe only because every key protects
// exactly one message.
func (s Suite) Seal(key *SymmetricKey, plaintext []byte) ([]byte, error) {
	if key == nil {
		return nil, errors.New("seal: nil key")
	}
	if s.Normalize() == SuiteSecretBox {
		nonce, err := GenerateNonce()
		if err != nil {
			return nil, fmt.Errorf("seal: %w", err)
		}
		out := make([]byte, len(nonce), len(nonce)+len(plaintext)+secretbox.Overhead)
		copy(out, nonce[:])
		return secretbox.Seal(out, plaintext, (*[24]byte)(&nonce), (*[32]byte)(key)), nil
	}

	fn, err := s.noiseCipher()
	if err != nil {
		return nil, err
	}
	return fn.Cipher(*key).Encrypt(nil, 0, nil, plaintext), nil
}

// Open authenticates and decrypts a ciphertext produced by Seal.
func (s Suite) Open(key *SymmetricKey, ciphertext []byte) ([]byte, error) {
	if key == nil {
		return nil, errors.New("open: nil key")
	}
	if len(ciphertext) < s.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext shorter than overhead", ErrAuthentication)
	}
	if s.Normalize() == SuiteSecretBox {
		var nonce [24]byte
		copy(nonce[:], ciphertext[:len(nonce)])
		out, ok := secretbox.Open(nil, ciphertext[len(nonce):], &nonce, (*[32]byte)(key))
		if !ok {
			return nil, ErrAuthentication
		}
		return out, nil
	}

	fn, err := s.noiseCipher()
	if err != nil {
		return nil, err
	}
	out, err := fn.Cipher(*key).Decrypt(nil, 0, nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	return out, nil
}
