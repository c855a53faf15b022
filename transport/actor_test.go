package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/securesocket/crypto"
	"github.com/opd-ai/securesocket/protocol"
	"github.com/opd-ai/securesocket/reassembly"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const testTimeout = 5 * time.Second

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestProtocol(t *testing.T) *protocol.Protocol {
	t.Helper()
	proto, err := protocol.New()
	require.NoError(t, err)
	return proto
}

func testOptions(proto *protocol.Protocol) *Options {
	opts := NewOptions()
	opts.Protocol = proto
	opts.Retry = RetryConfig{Delay: 10 * time.Millisecond, Multiplier: 1.0}
	opts.HandshakeTimeout = 2 * time.Second
	opts.Logger = quietLogger()
	return opts
}

// startPair connects a server and client on a free loopback port.
func startPair(t *testing.T, srvOpts, cliOpts *Options) (*Server, *Client) {
	t.Helper()
	port, err := FindAvailablePort()
	require.NoError(t, err)

	srv, err := NewServer(net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), srvOpts)
	require.NoError(t, err)
	cli, err := NewClient("127.0.0.1", port, cliOpts)
	require.NoError(t, err)
	t.Cleanup(func() {
		cli.Cleanup()
		srv.Cleanup()
	})

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	var g errgroup.Group
	g.Go(func() error { return srv.Startup(ctx) })
	g.Go(func() error { return cli.Startup(ctx) })
	require.NoError(t, g.Wait())

	assert.Equal(t, StateReady, srv.State())
	assert.Equal(t, StateReady, cli.State())
	return srv, cli
}

// collect polls the inbox until at least n items arrived.
func collect(t *testing.T, a *Actor, n int) []reassembly.Item {
	t.Helper()
	var got []reassembly.Item
	require.Eventually(t, func() bool {
		got = append(got, a.Complete()...)
		return len(got) >= n
	}, testTimeout, 5*time.Millisecond)
	return got
}

func waitDone(t *testing.T, a *Actor) {
	t.Helper()
	select {
	case <-a.Done():
	case <-time.After(testTimeout):
		t.Fatal("actor did not close")
	}
}

func TestClientMessageReachesServer(t *testing.T) {
	proto := newTestProtocol(t)
	srv, cli := startPair(t, testOptions(proto), testOptions(proto))

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, cli.Send(ctx, []byte("HELLO")))

	items := collect(t, srv.Actor, 1)
	require.Len(t, items, 1)
	assert.Equal(t, []byte("HELLO"), items[0].Text)
	assert.False(t, items[0].IsEvent())
	assert.Empty(t, items[0].Events)
	assert.Empty(t, srv.All(), "nothing left pending")

	stats := srv.Stats()
	assert.Equal(t, uint64(1), stats.Messages)
	assert.Equal(t, uint64(1), stats.Decoder.Accepted)
	assert.Equal(t, uint64(1), cli.Stats().ChunksSent)
}

func TestInputRequestIsAnsweredByPrompt(t *testing.T) {
	proto := newTestProtocol(t)

	var mu sync.Mutex
	var events []protocol.ControlEvent
	srvOpts := testOptions(proto)
	srvOpts.OnEvent = func(ev protocol.ControlEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}
	srvOpts.Prompt = func(prompt string) string {
		return "Bob"
	}
	srv, cli := startPair(t, srvOpts, testOptions(proto))

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, cli.SendControl(ctx, protocol.EventInput, "Name:"))

	var reply []reassembly.Item
	require.Eventually(t, func() bool {
		reply = append(reply, cli.All()...)
		return len(reply) >= 1
	}, testTimeout, 5*time.Millisecond)
	require.Len(t, reply, 1)
	assert.Equal(t, []byte("Bob"), reply[0].Text)
	assert.False(t, reply[0].Partial)

	mu.Lock()
	assert.Equal(t, []protocol.ControlEvent{{Name: protocol.EventInput, Argument: "Name:"}}, events)
	mu.Unlock()

	surfaced := srv.Complete()
	require.Len(t, surfaced, 1)
	require.True(t, surfaced[0].IsEvent())
	assert.Equal(t, "Name:", surfaced[0].Event.Argument)
}

func TestMessageCallback(t *testing.T) {
	proto := newTestProtocol(t)
	received := make(chan []byte, 1)
	srvOpts := testOptions(proto)
	srvOpts.OnMessage = func(text []byte) { received <- text }
	_, cli := startPair(t, srvOpts, testOptions(proto))

	require.NoError(t, cli.Send(context.Background(), []byte("via callback")))
	select {
	case got := <-received:
		assert.Equal(t, []byte("via callback"), got)
	case <-time.After(testTimeout):
		t.Fatal("callback not invoked")
	}
}

func TestServerToClientMultiChunk(t *testing.T) {
	proto := newTestProtocol(t)
	srv, cli := startPair(t, testOptions(proto), testOptions(proto))

	payload := bytes.Repeat([]byte("0123456789[]::"), 500)
	require.NoError(t, srv.Send(context.Background(), payload))

	items := collect(t, cli.Actor, 1)
	require.Len(t, items, 1)
	assert.Equal(t, payload, items[0].Text)
	assert.Greater(t, srv.Stats().ChunksSent, uint64(1))
}

func TestConcurrentSendsDoNotInterleave(t *testing.T) {
	proto := newTestProtocol(t)
	srv, cli := startPair(t, testOptions(proto), testOptions(proto))

	const senders = 8
	var g errgroup.Group
	for i := 0; i < senders; i++ {
		fill := byte('a' + i)
		g.Go(func() error {
			return cli.Send(context.Background(), bytes.Repeat([]byte{fill}, 3000))
		})
	}
	require.NoError(t, g.Wait())

	items := collect(t, srv.Actor, senders)
	require.Len(t, items, senders)
	seen := make(map[byte]bool)
	for _, item := range items {
		require.Len(t, item.Text, 3000)
		assert.Equal(t, bytes.Repeat(item.Text[:1], 3000), item.Text, "message bytes interleaved")
		seen[item.Text[0]] = true
	}
	assert.Len(t, seen, senders)
}

func TestShutdownClosesBothPeers(t *testing.T) {
	proto := newTestProtocol(t)
	srv, cli := startPair(t, testOptions(proto), testOptions(proto))

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, cli.Shutdown(ctx))

	waitDone(t, srv.Actor)
	assert.Equal(t, StateClosed, cli.State())
	assert.Equal(t, StateClosed, srv.State())
	assert.NoError(t, cli.Err())
	assert.NoError(t, srv.Err())

	shutdown := srv.Complete()
	require.Len(t, shutdown, 1)
	assert.Equal(t, protocol.EventShutdown, shutdown[0].Event.Name)
}

func TestPeerDropIsTransportError(t *testing.T) {
	proto := newTestProtocol(t)
	srv, cli := startPair(t, testOptions(proto), testOptions(proto))

	require.NoError(t, srv.Close())
	waitDone(t, cli.Actor)

	assert.NoError(t, srv.Err())
	err := cli.Err()
	require.ErrorIs(t, err, ErrTransport)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "read", opErr.Op)
}

func TestCloseIsIdempotent(t *testing.T) {
	proto := newTestProtocol(t)
	_, cli := startPair(t, testOptions(proto), testOptions(proto))

	require.NoError(t, cli.Close())
	require.NoError(t, cli.Close())
	cli.Cleanup()
	cli.Cleanup()

	assert.Equal(t, StateClosed, cli.State())
	assert.ErrorIs(t, cli.Send(context.Background(), []byte("late")), ErrClosed)
	assert.ErrorIs(t, cli.EnqueueMessage([]byte("late")), ErrClosed)
	assert.ErrorIs(t, cli.Flush(context.Background()), ErrClosed)
}

func TestFlushSendsEnqueuedBatch(t *testing.T) {
	proto := newTestProtocol(t)
	srv, cli := startPair(t, testOptions(proto), testOptions(proto))

	require.NoError(t, cli.EnqueueMessage([]byte("first")))
	require.NoError(t, cli.EnqueueMessage([]byte("second")))
	require.NoError(t, cli.Flush(context.Background()))
	require.NoError(t, cli.Flush(context.Background()), "empty flush is a no-op")

	items := collect(t, srv.Actor, 2)
	require.Len(t, items, 2)
	assert.Equal(t, []byte("first"), items[0].Text)
	assert.Equal(t, []byte("second"), items[1].Text)
	assert.Equal(t, uint64(1), cli.Stats().ChunksSent)
}

func TestFlushWaitsForHandshake(t *testing.T) {
	proto := newTestProtocol(t)
	cli, err := NewClient("127.0.0.1", 0, testOptions(proto))
	require.NoError(t, err)
	defer cli.Cleanup()

	require.NoError(t, cli.EnqueueMessage([]byte("queued")))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, cli.Flush(ctx), context.DeadlineExceeded)
	assert.Equal(t, StateUninitialized, cli.State())
}

func TestRateLimitDropsChunks(t *testing.T) {
	proto := newTestProtocol(t)
	srvOpts := testOptions(proto)
	srvOpts.MinChunkInterval = time.Hour
	srvOpts.RateBurst = 1
	srv, cli := startPair(t, srvOpts, testOptions(proto))

	ctx := context.Background()
	require.NoError(t, cli.Send(ctx, []byte("one")))
	require.NoError(t, cli.Send(ctx, []byte("two")))

	require.Eventually(t, func() bool {
		return srv.Stats().RateLimited == 1
	}, testTimeout, 5*time.Millisecond)

	stats := srv.Stats()
	assert.Equal(t, uint64(2), stats.ChunksReceived)
	assert.Equal(t, uint64(1), stats.Decoder.Accepted)
	items := srv.Complete()
	require.Len(t, items, 1)
	assert.Equal(t, []byte("one"), items[0].Text)
	assert.Equal(t, StateReady, srv.State(), "rate limiting is not fatal")
}

func TestMismatchedCommCodeNeverCompletes(t *testing.T) {
	srv, cli := startPair(t, testOptions(newTestProtocol(t)), testOptions(newTestProtocol(t)))

	require.NoError(t, cli.Send(context.Background(), []byte("hi")))

	var items []reassembly.Item
	require.Eventually(t, func() bool {
		items = append(items, srv.All()...)
		return len(items) >= 1
	}, testTimeout, 5*time.Millisecond)
	require.Len(t, items, 1)
	assert.True(t, items[0].Partial)
	assert.True(t, bytes.HasPrefix(items[0].Text, []byte("hi[")))
}

func TestCustomSuiteAndChunkSize(t *testing.T) {
	proto := newTestProtocol(t)
	mk := func() *Options {
		opts := testOptions(proto)
		opts.Suite = crypto.SuiteAESGCM
		opts.ChunkSize = 256
		return opts
	}
	srv, cli := startPair(t, mk(), mk())

	payload := bytes.Repeat([]byte{0, 1, 2}, 300)
	require.NoError(t, cli.Send(context.Background(), payload))
	items := collect(t, srv.Actor, 1)
	assert.Equal(t, payload, items[0].Text)
}

func TestPrivateKeyOverride(t *testing.T) {
	keys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	opts := testOptions(newTestProtocol(t))
	opts.PrivateKey = &keys.Private
	srv, err := NewServer("127.0.0.1:0", opts)
	require.NoError(t, err)
	defer srv.Cleanup()

	assert.Equal(t, keys.Public, srv.PublicKey())
}

func TestStartupTwice(t *testing.T) {
	proto := newTestProtocol(t)
	srv, _ := startPair(t, testOptions(proto), testOptions(proto))

	err := srv.Startup(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStartupCancelledWhileAccepting(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", testOptions(newTestProtocol(t)))
	require.NoError(t, err)
	defer srv.Cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- srv.Startup(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, testTimeout, 5*time.Millisecond)
	assert.Equal(t, StateListening, srv.State())
	cancel()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(testTimeout):
		t.Fatal("startup did not return")
	}
	assert.Equal(t, StateClosed, srv.State())
}

func TestCloseUnblocksAccept(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", testOptions(newTestProtocol(t)))
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() { result <- srv.Startup(context.Background()) }()
	require.Eventually(t, func() bool { return srv.Addr() != nil }, testTimeout, 5*time.Millisecond)

	srv.Cleanup()
	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(testTimeout):
		t.Fatal("startup did not return")
	}
}

func TestClientHandshakeTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	release := make(chan struct{})
	defer close(release)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		<-release
		conn.Close()
	}()

	opts := testOptions(newTestProtocol(t))
	opts.HandshakeTimeout = 100 * time.Millisecond
	cli, err := NewClient("127.0.0.1", ln.Addr().(*net.TCPAddr).Port, opts)
	require.NoError(t, err)
	defer cli.Cleanup()

	err = cli.Startup(context.Background())
	require.ErrorIs(t, err, ErrHandshake)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "handshake", opErr.Op)
	assert.Equal(t, StateClosed, cli.State())
	assert.ErrorIs(t, cli.Err(), ErrHandshake)
}

func TestServerHandshakeTimeout(t *testing.T) {
	srvEnd, peerEnd := net.Pipe()
	defer peerEnd.Close()
	go io.Copy(io.Discard, peerEnd)

	opts := testOptions(newTestProtocol(t))
	opts.HandshakeTimeout = 100 * time.Millisecond
	srv, err := NewServerFromConn(srvEnd, opts)
	require.NoError(t, err)
	defer srv.Cleanup()

	err = srv.Startup(context.Background())
	assert.ErrorIs(t, err, ErrHandshake)
	assert.Equal(t, StateClosed, srv.State())
}

func TestSuiteMismatchFailsServerHandshake(t *testing.T) {
	proto := newTestProtocol(t)
	port, err := FindAvailablePort()
	require.NoError(t, err)

	srvOpts := testOptions(proto)
	srvOpts.Suite = crypto.SuiteSecretBox
	cliOpts := testOptions(proto)
	cliOpts.Suite = crypto.SuiteChaChaPoly

	srv, err := NewServer(net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), srvOpts)
	require.NoError(t, err)
	defer srv.Cleanup()
	cli, err := NewClient("127.0.0.1", port, cliOpts)
	require.NoError(t, err)
	defer cli.Cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Startup(ctx) }()
	_ = cli.Startup(ctx)

	select {
	case err := <-srvErr:
		assert.ErrorIs(t, err, ErrHandshake)
	case <-time.After(testTimeout):
		t.Fatal("server startup did not return")
	}
}

func TestOptionsValidation(t *testing.T) {
	_, err := NewServer("127.0.0.1:0", NewOptions())
	assert.ErrorIs(t, err, ErrConfiguration, "protocol is required")

	_, err = NewServer("127.0.0.1:0", nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	opts := testOptions(newTestProtocol(t))
	opts.ChunkSize = 64
	_, err = NewClient("127.0.0.1", 1, opts)
	assert.ErrorIs(t, err, ErrConfiguration)

	opts = testOptions(newTestProtocol(t))
	opts.Suite = "rot13"
	_, err = NewServer("127.0.0.1:0", opts)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewClient("127.0.0.1", 70000, testOptions(newTestProtocol(t)))
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewServerFromConn(nil, testOptions(newTestProtocol(t)))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestClientZeroPortAllocates(t *testing.T) {
	cli, err := NewClient("127.0.0.1", 0, testOptions(newTestProtocol(t)))
	require.NoError(t, err)
	defer cli.Cleanup()

	assert.NotZero(t, cli.Port())
	assert.Equal(t, net.JoinHostPort("127.0.0.1", strconv.Itoa(cli.Port())), cli.Target())
}

func TestOpErrorFormatting(t *testing.T) {
	cause := errors.New("boom")
	err := newOpError("write", "10.0.0.1:9", ErrTransport, cause)

	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "securesocket write 10.0.0.1:9: transport failure: boom", err.Error())
	assert.Equal(t, "securesocket listen: x", (&OpError{Op: "listen", Err: errors.New("x")}).Error())
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateUninitialized: "uninitialized",
		StateListening:     "listening",
		StateConnecting:    "connecting",
		StateHandshaking:   "handshaking",
		StateReady:         "ready",
		StateClosed:        "closed",
		State(42):          "unknown",
	}
	for state, want := range tests {
		assert.Equal(t, want, state.String())
	}
}

func TestCleanupWipesPrivateKey(t *testing.T) {
	c, err := NewClient("127.0.0.1", 1, testOptions(newTestProtocol(t)))
	require.NoError(t, err)
	pub := c.PublicKey()
	require.NotEqual(t, [32]byte{}, c.keys.Private)

	c.Cleanup()
	assert.Equal(t, [32]byte{}, c.keys.Private)
	assert.Equal(t, pub, c.PublicKey())
}
