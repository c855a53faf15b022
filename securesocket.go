package securesocket

import (
	"context"

	"github.com/opd-ai/securesocket/transport"
)

type (
	// Options configures a Server or Client.
	Options = transport.Options
	// Server is the listening peer.
	Server = transport.Server
	// Client is the dialing peer.
	Client = transport.Client
)

// NewOptions returns transport defaults. Protocol must be set before use.
func NewOptions() *Options {
	return transport.NewOptions()
}

// Listen binds addr, waits for one peer, and completes the handshake.
func Listen(ctx context.Context, addr string, opts *Options) (*Server, error) {
	srv, err := transport.NewServer(addr, opts)
	if err != nil {
		return nil, err
	}
	if err := srv.Startup(ctx); err != nil {
		srv.Cleanup()
		return nil, err
	}
	return srv, nil
}

// Dial connects to host:port and completes the handshake.
func Dial(ctx context.Context, host string, port int, opts *Options) (*Client, error) {
	cli, err := transport.NewClient(host, port, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Startup(ctx); err != nil {
		cli.Cleanup()
		return nil, err
	}
	return cli, nil
}
