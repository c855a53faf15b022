// Package transport runs the encrypted chunk protocol over a single TCP
// connection between a Server and a Client.
//
// # Handshake
//
// The server sends its raw 32-byte public key as soon as the peer connects.
// The client replies with a length-prefixed sealed ephemeral key followed by
// its own public key encrypted under that ephemeral key. One round trip gives
// both sides the peer key they seal chunks to.
//
// # Lifecycle
//
//	opts := transport.NewOptions()
//	opts.Protocol = proto
//	srv, err := transport.NewServer("127.0.0.1:9000", opts)
//	go srv.Startup(ctx)
//
//	cli, err := transport.NewClient("127.0.0.1", 9000, opts)
//	err = cli.Startup(ctx)
//	err = cli.Send(ctx, []byte("HELLO"))
//
// Each actor runs one read loop goroutine that decrypts chunks, feeds the
// reassembler, and dispatches messages and events to the inbox and to the
// optional callbacks. A "shutdown" event closes both peers cleanly; an
// "input" event is answered through Options.Prompt.
//
// Writes from any goroutine are serialized by a per-actor lock. Close is
// idempotent; Cleanup also waits for the read loop.
package transport
