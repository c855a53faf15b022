package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
)

// Server listens for exactly one peer and speaks first in the handshake.
type Server struct {
	*Actor
	addr    string
	preConn net.Conn
}

// NewServer creates a server that will listen on addr ("host:port").
func NewServer(addr string, opts *Options) (*Server, error) {
	a, err := newActor("server", opts)
	if err != nil {
		return nil, err
	}
	return &Server{Actor: a, addr: addr}, nil
}

// NewServerFromConn creates a server around an already accepted connection.
func NewServerFromConn(conn net.Conn, opts *Options) (*Server, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: nil connection", ErrConfiguration)
	}
	a, err := newActor("server", opts)
	if err != nil {
		return nil, err
	}
	return &Server{Actor: a, addr: conn.LocalAddr().String(), preConn: conn}, nil
}

// Startup binds (retrying on failure), accepts one peer, and completes the
// handshake. It returns once the connection is ready.
func (s *Server) Startup(ctx context.Context) error {
	next := StateListening
	if s.preConn != nil {
		next = StateConnecting
	}
	if !s.transition(StateUninitialized, next) {
		return fmt.Errorf("%w: startup in state %s", ErrInvalidState, s.State())
	}

	ctx, cancel := s.bindContext(ctx)
	defer cancel()

	conn := s.preConn
	if conn == nil {
		var err error
		if conn, err = s.accept(ctx); err != nil {
			s.closeWith(err)
			return err
		}
	}

	return s.establish(ctx, conn, func(c net.Conn) (*[32]byte, error) {
		if err := writeServerHello(c, &s.keys.Public); err != nil {
			return nil, err
		}
		return readClientHello(c, s.keys, s.opts.Suite)
	})
}

func (s *Server) accept(ctx context.Context) (net.Conn, error) {
	var ln net.Listener
	err := retry(ctx, s.opts.Retry, s.log, "listen", func() error {
		l, err := net.Listen("tcp", s.addr)
		if err != nil {
			return newOpError("listen", s.addr, ErrTransport, err)
		}
		ln = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !s.setListener(ln) {
		ln.Close()
		return nil, ErrClosed
	}

	s.log.WithFields(logrus.Fields{
		"function": "accept",
		"addr":     ln.Addr().String(),
	}).Info("Listening for peer")

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	conn, err := ln.Accept()
	stop()
	ln.Close()
	if err != nil {
		if s.State() == StateClosed {
			return nil, ErrClosed
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, newOpError("accept", ln.Addr().String(), ErrTransport, err)
	}
	return conn, nil
}
