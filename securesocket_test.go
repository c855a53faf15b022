package securesocket

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/opd-ai/securesocket/protocol"
	"github.com/opd-ai/securesocket/transport"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func testOptions(t *testing.T, proto *protocol.Protocol) *Options {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	opts := NewOptions()
	opts.Protocol = proto
	opts.Retry = transport.RetryConfig{Delay: 10 * time.Millisecond, Multiplier: 1}
	opts.Logger = logger
	return opts
}

func TestListenAndDial(t *testing.T) {
	proto, err := protocol.New()
	require.NoError(t, err)
	port, err := transport.FindAvailablePort()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var srv *Server
	var cli *Client
	var g errgroup.Group
	g.Go(func() (err error) {
		srv, err = Listen(ctx, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), testOptions(t, proto))
		return err
	})
	g.Go(func() (err error) {
		cli, err = Dial(ctx, "127.0.0.1", port, testOptions(t, proto))
		return err
	})
	require.NoError(t, g.Wait())
	defer srv.Cleanup()
	defer cli.Cleanup()

	require.NoError(t, srv.Send(ctx, []byte("welcome")))

	var got []byte
	require.Eventually(t, func() bool {
		for _, item := range cli.Complete() {
			got = item.Text
		}
		return got != nil
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte("welcome"), got)

	require.NoError(t, cli.Shutdown(ctx))
	<-srv.Done()
	assert.NoError(t, srv.Err())
}

func TestDialFailureCleansUp(t *testing.T) {
	proto, err := protocol.New()
	require.NoError(t, err)
	port, err := transport.FindAvailablePort()
	require.NoError(t, err)

	opts := testOptions(t, proto)
	opts.Retry.MaxAttempts = 2
	cli, err := Dial(context.Background(), "127.0.0.1", port, opts)
	assert.Nil(t, cli)
	assert.ErrorIs(t, err, transport.ErrTransport)
}

func TestListenRequiresProtocol(t *testing.T) {
	_, err := Listen(context.Background(), "127.0.0.1:0", NewOptions())
	assert.ErrorIs(t, err, transport.ErrConfiguration)
}
