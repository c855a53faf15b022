// Package securesocket exchanges messages and control events between two
// peers over one TCP connection, with every fixed-size chunk encrypted to
// the receiver's public key.
//
// # Getting Started
//
// Both peers share a protocol configuration out of band. Generate one and
// write it to a TOML file:
//
//	cfg, err := securesocket.GenerateConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = securesocket.WriteConfig(f, cfg)
//
// Each side then loads the file and starts its half:
//
//	opts, err := securesocket.LoadConfig("session.toml")
//	srv, err := securesocket.Listen(ctx, "127.0.0.1:9000", opts)
//	defer srv.Cleanup()
//
//	cli, err := securesocket.Dial(ctx, "127.0.0.1", 9000, opts)
//	err = cli.Send(ctx, []byte("HELLO"))
//
// Received messages accumulate in the actor's inbox (Complete, All) and are
// also delivered to Options.OnMessage and Options.OnEvent.
//
// # Wire Format
//
// Every chunk is exactly ChunkSize bytes:
//
//	[ciphertext][NUL padding][sealed symmetric key (80)][uint16 ciphertext length]
//
// The ciphertext carries a segment of the plaintext stream followed by a
// sequence number and timestamp used for replay protection. Message
// boundaries and events are control tokens in the plaintext stream, prefixed
// with a random comm code so payload bytes can never be mistaken for them.
//
// # Packages
//
//   - protocol: control token vocabulary and configuration
//   - frame: chunk encoder and decoder
//   - reassembly: incremental tokenizer for the decrypted stream
//   - transport: Server and Client actors
//   - crypto: key pairs, sealed keys, cipher suites
//   - limits: chunk geometry
package securesocket
