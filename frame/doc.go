// Package frame converts a stream of payload bytes and control tokens into
// fixed-size encrypted chunks and back.
//
// An [Encoder] buffers messages (each followed by the protocol's end token)
// and control tokens. [Encoder.Flush] cuts the buffer into segments and seals
// each one with a fresh symmetric key, which is in turn sealed to the peer's
// public key. Every chunk is exactly ChunkSize bytes; see package limits for
// the layout.
//
// A [Decoder] reverses one chunk at a time and enforces replay protection:
// the sequence number carried inside the ciphertext must strictly increase and
// the timestamp must fall inside the configured window.
//
//	enc, _ := frame.NewEncoder(proto, frame.DefaultOptions())
//	enc.SetRecipient(&peer.Public)
//	_ = enc.EnqueueMessage([]byte("HELLO"))
//	chunks, _ := enc.Flush()
//
//	dec, _ := frame.NewDecoder(myKeys, frame.DefaultOptions())
//	for _, c := range chunks {
//	    plaintext, err := dec.AcceptChunk(c)
//	    ...
//	}
//
// Encoder and Decoder are not safe for concurrent use; the transport gives
// each to a single owner.
package frame
