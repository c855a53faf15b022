package frame

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/opd-ai/securesocket/limits"
)

// assemble lays out one chunk: ciphertext, NUL padding, sealed key, length.
func assemble(chunkSize int, ciphertext, sealedKey []byte) ([]byte, error) {
	if len(sealedKey) != limits.SealedKeySize {
		return nil, fmt.Errorf("sealed key is %d bytes, want %d", len(sealedKey), limits.SealedKeySize)
	}
	if len(ciphertext) > limits.MaxCiphertext(chunkSize) {
		return nil, fmt.Errorf("ciphertext of %d bytes overflows chunk of %d", len(ciphertext), chunkSize)
	}

	out := make([]byte, chunkSize)
	copy(out, ciphertext)
	keyOffset := chunkSize - limits.SealedKeySize - limits.LengthFieldSize
	copy(out[keyOffset:], sealedKey)
	binary.BigEndian.PutUint16(out[chunkSize-limits.LengthFieldSize:], uint16(len(ciphertext)))
	return out, nil
}

// split recovers the ciphertext and sealed key from a chunk at fixed offsets.
func split(chunkSize int, raw []byte) (ciphertext, sealedKey []byte, err error) {
	if len(raw) != chunkSize {
		return nil, nil, fmt.Errorf("%w: chunk is %d bytes, want %d", ErrDecryption, len(raw), chunkSize)
	}
	length := int(binary.BigEndian.Uint16(raw[chunkSize-limits.LengthFieldSize:]))
	if length > limits.MaxCiphertext(chunkSize) {
		return nil, nil, fmt.Errorf("%w: length field %d exceeds ciphertext region", ErrDecryption, length)
	}
	keyOffset := chunkSize - limits.SealedKeySize - limits.LengthFieldSize
	return raw[:length], raw[keyOffset : chunkSize-limits.LengthFieldSize], nil
}

// appendTrailer returns a new slice holding segment||sequence||timestamp.
func appendTrailer(segment []byte, seq uint64, ts time.Time) []byte {
	out := make([]byte, len(segment)+limits.TrailerSize)
	n := copy(out, segment)
	binary.BigEndian.PutUint64(out[n:], seq)
	binary.BigEndian.PutUint64(out[n+limits.SequenceSize:], uint64(ts.UnixNano()))
	return out
}

// parseTrailer strips the trailer from a decrypted chunk body.
func parseTrailer(plain []byte) (segment []byte, seq uint64, ts time.Time, err error) {
	if len(plain) < limits.TrailerSize {
		return nil, 0, time.Time{}, fmt.Errorf("%w: plaintext shorter than trailer", ErrDecryption)
	}
	n := len(plain) - limits.TrailerSize
	seq = binary.BigEndian.Uint64(plain[n:])
	ts = time.Unix(0, int64(binary.BigEndian.Uint64(plain[n+limits.SequenceSize:])))
	return plain[:n], seq, ts, nil
}
