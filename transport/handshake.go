package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/opd-ai/securesocket/crypto"
	"github.com/opd-ai/securesocket/limits"
)

// The server opens with its raw public key. The client answers with
//
//	[u16 n][sealed ephemeral key (limits.SealedKeySize)][n bytes: client public key sealed with the ephemeral key]
//
// after which both sides know each other's public key.

// writeServerHello sends the server's public key.
func writeServerHello(w io.Writer, pub *[32]byte) error {
	_, err := w.Write(pub[:])
	return err
}

// readServerHello reads and validates the server's public key.
func readServerHello(r io.Reader) (*[32]byte, error) {
	buf := make([]byte, crypto.PublicKeySize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	pub, err := crypto.PublicKeyFromBytes(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return pub, nil
}

// clientHello builds the reply carrying clientPub to the holder of serverPub.
func clientHello(serverPub, clientPub *[32]byte, suite crypto.Suite) ([]byte, error) {
	key, err := crypto.GenerateSymmetricKey()
	if err != nil {
		return nil, err
	}
	defer crypto.WipeSymmetricKey(key)

	sealedKey, err := crypto.SealKey(key, serverPub)
	if err != nil {
		return nil, err
	}
	sealedPub, err := suite.Seal(key, clientPub[:])
	if err != nil {
		return nil, err
	}

	msg := make([]byte, limits.LengthFieldSize, limits.LengthFieldSize+len(sealedKey)+len(sealedPub))
	binary.BigEndian.PutUint16(msg, uint16(len(sealedPub)))
	msg = append(msg, sealedKey...)
	msg = append(msg, sealedPub...)
	return msg, nil
}

// writeClientHello sends the client's handshake reply.
func writeClientHello(w io.Writer, serverPub, clientPub *[32]byte, suite crypto.Suite) error {
	msg, err := clientHello(serverPub, clientPub, suite)
	if err != nil {
		return err
	}
	_, err = w.Write(msg)
	return err
}

// readClientHello reads the client's reply and recovers its public key.
// Socket errors are returned unwrapped; malformed content yields ErrHandshake.
func readClientHello(r io.Reader, keys *crypto.KeyPair, suite crypto.Suite) (*[32]byte, error) {
	var hdr [limits.LengthFieldSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(hdr[:]))
	if want := crypto.PublicKeySize + suite.Overhead(); n != want {
		return nil, fmt.Errorf("%w: sealed public key is %d bytes, want %d", ErrHandshake, n, want)
	}

	body := make([]byte, limits.SealedKeySize+n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	key, err := crypto.OpenKey(body[:limits.SealedKeySize], keys)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	defer crypto.WipeSymmetricKey(key)

	raw, err := suite.Open(key, body[limits.SealedKeySize:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	pub, err := crypto.PublicKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return pub, nil
}
