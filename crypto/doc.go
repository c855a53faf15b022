// Package crypto wraps the primitives the chunk codec and handshake consume.
//
// Nothing here implements a cipher. Key pairs and the anonymous key wrap come
// from NaCl box (golang.org/x/crypto/nacl/box); chunk bodies are protected by
// one of the suites in [SupportedSuites], backed either by NaCl secretbox or
// by the cipher functions of github.com/flynn/noise.
//
// # Hybrid encryption
//
// Every chunk gets a fresh [SymmetricKey]. The body is sealed with the suite
// and the key is sealed to the peer's public key with [SealKey], which always
// produces [SealedKeySize] bytes:
//
//	key, _ := crypto.GenerateSymmetricKey()
//	defer crypto.WipeSymmetricKey(key)
//
//	body, _ := crypto.SuiteSecretBox.Seal(key, plaintext)
//	wrapped, _ := crypto.SealKey(key, &peer.Public)
//
// The receiver reverses it with [OpenKey] and [Suite.Open].
//
// # Time
//
// Freshness checks take a [TimeProvider] so tests can pin the clock.
package crypto
