package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// Client dials a server and answers its handshake.
type Client struct {
	*Actor
	host string
	port int
}

// NewClient creates a client for host:port. A zero port is replaced with a
// free local port from FindAvailablePort.
func NewClient(host string, port int, opts *Options) (*Client, error) {
	if port == 0 {
		p, err := FindAvailablePort()
		if err != nil {
			return nil, err
		}
		port = p
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrConfiguration, port)
	}
	a, err := newActor("client", opts)
	if err != nil {
		return nil, err
	}
	return &Client{Actor: a, host: host, port: port}, nil
}

// Port returns the port the client dials.
func (c *Client) Port() int { return c.port }

// Target returns the dial address.
func (c *Client) Target() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Startup dials (retrying on failure) and completes the handshake.
func (c *Client) Startup(ctx context.Context) error {
	if !c.transition(StateUninitialized, StateConnecting) {
		return fmt.Errorf("%w: startup in state %s", ErrInvalidState, c.State())
	}

	ctx, cancel := c.bindContext(ctx)
	defer cancel()

	target := c.Target()
	var conn net.Conn
	var d net.Dialer
	err := retry(ctx, c.opts.Retry, c.log, "dial", func() error {
		cn, err := d.DialContext(ctx, "tcp", target)
		if err != nil {
			return newOpError("dial", target, ErrTransport, err)
		}
		conn = cn
		return nil
	})
	if err != nil {
		c.closeWith(err)
		return err
	}

	return c.establish(ctx, conn, func(cn net.Conn) (*[32]byte, error) {
		serverPub, err := readServerHello(cn)
		if err != nil {
			return nil, err
		}
		if err := writeClientHello(cn, serverPub, &c.keys.Public, c.opts.Suite); err != nil {
			return nil, err
		}
		return serverPub, nil
	})
}
