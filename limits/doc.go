// Package limits provides the frame geometry constants and size validation
// shared by the chunk encoder, decoder, and transport.
//
// # Frame Geometry
//
// Every chunk is exactly ChunkSize bytes:
//
//	[0 .. L)                 ciphertext region
//	[L .. C-K-2)             NUL padding
//	[C-K-2 .. C-2)           sealed symmetric key (K = SealedKeySize)
//	[C-2 .. C)               big-endian uint16 L
//
// The ciphertext decrypts to the segment followed by a TrailerSize-byte
// trailer carrying the sequence number and timestamp. MaxSegment subtracts all
// of that from the chunk size, and MinChunkSize is the smallest chunk for which
// MaxSegment is still one byte:
//
//	if err := limits.ValidateChunkSize(size, suite); err != nil {
//	    // size cannot carry a single plaintext byte, or overflows the length field
//	}
//
// # Payload Limits
//
// MaxMessageSize (1MB) bounds a single enqueued payload and protects the encoder
// buffer from memory exhaustion. Empty payloads are valid messages.
package limits
