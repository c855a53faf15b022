package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/securesocket/crypto"
	"github.com/opd-ai/securesocket/frame"
	"github.com/opd-ai/securesocket/protocol"
	"github.com/opd-ai/securesocket/reassembly"
	"github.com/sirupsen/logrus"
)

// aLongTimeAgo is a deadline that unblocks pending socket I/O immediately.
var aLongTimeAgo = time.Unix(1, 0)

// Stats summarizes an actor's traffic.
type Stats struct {
	Decoder        frame.Stats
	ChunksReceived uint64
	ChunksSent     uint64
	RateLimited    uint64
	Messages       uint64
	Events         uint64
}

// Actor owns one connection: its handshake, the background read loop, and the
// serialized write path. Server and Client embed it.
type Actor struct {
	role  string
	opts  *Options
	proto *protocol.Protocol
	keys  *crypto.KeyPair
	log   *logrus.Entry

	state atomic.Int32

	mu       sync.Mutex // guards conn, listener, err and state transitions
	conn     net.Conn
	listener net.Listener
	err      error

	writeMu sync.Mutex
	enc     *frame.Encoder

	dec     *frame.Decoder
	limiter *chunkLimiter

	inMu  sync.Mutex
	reasm *reassembly.Reassembler
	inbox []reassembly.Item

	shuttingDown atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	ready     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	chunksIn    atomic.Uint64
	chunksOut   atomic.Uint64
	rateLimited atomic.Uint64
	messages    atomic.Uint64
	events      atomic.Uint64
}

func newActor(role string, opts *Options) (*Actor, error) {
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}

	var keys *crypto.KeyPair
	if opts.PrivateKey != nil {
		keys, err = crypto.FromSecretKey(*opts.PrivateKey)
	} else {
		keys, err = crypto.GenerateKeyPair()
	}
	if err != nil {
		return nil, err
	}

	log := opts.Logger.WithFields(logrus.Fields{
		"package": "transport",
		"role":    role,
	})
	fo := opts.frameOptions(log)
	enc, err := frame.NewEncoder(opts.Protocol, fo)
	if err != nil {
		return nil, err
	}
	dec, err := frame.NewDecoder(keys, fo)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor{
		role:    role,
		opts:    opts,
		proto:   opts.Protocol,
		keys:    keys,
		enc:     enc,
		dec:     dec,
		limiter: newChunkLimiter(opts.MinChunkInterval, opts.RateBurst, opts.TimeProvider),
		reasm:   reassembly.NewWithLogger(opts.Protocol, log),
		ctx:     ctx,
		cancel:  cancel,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		log:     log,
	}

	a.log.WithFields(logrus.Fields{
		"function":   "newActor",
		"chunk_size": opts.ChunkSize,
		"suite":      opts.Suite,
	}).Debug("Actor created")

	return a, nil
}

// State returns the current lifecycle state.
func (a *Actor) State() State { return State(a.state.Load()) }

// transition moves from one state to another, failing if the actor is
// elsewhere (including closed).
func (a *Actor) transition(from, to State) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.CompareAndSwap(int32(from), int32(to))
}

// PublicKey returns the actor's long-term public key.
func (a *Actor) PublicKey() [32]byte { return a.keys.Public }

// Addr returns the local address of the connection, or of the listener while
// a server waits for its peer. Nil before either exists.
func (a *Actor) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		return a.conn.LocalAddr()
	}
	if a.listener != nil {
		return a.listener.Addr()
	}
	return nil
}

// RemoteAddr returns the peer address once connected.
func (a *Actor) RemoteAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	return a.conn.RemoteAddr()
}

func (a *Actor) remote() string {
	if addr := a.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Ready is closed once the handshake completes.
func (a *Actor) Ready() <-chan struct{} { return a.ready }

// Done is closed when the actor closes for any reason.
func (a *Actor) Done() <-chan struct{} { return a.done }

// Err returns the error that closed the actor, or nil for a clean shutdown
// or while still open.
func (a *Actor) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Stats returns traffic counters.
func (a *Actor) Stats() Stats {
	return Stats{
		Decoder:        a.dec.Stats(),
		ChunksReceived: a.chunksIn.Load(),
		ChunksSent:     a.chunksOut.Load(),
		RateLimited:    a.rateLimited.Load(),
		Messages:       a.messages.Load(),
		Events:         a.events.Load(),
	}
}

// bindContext derives a context that is also cancelled when the actor closes.
func (a *Actor) bindContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(a.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// setListener records ln so Close can unblock Accept. It fails if the actor
// already closed.
func (a *Actor) setListener(ln net.Listener) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.State() == StateClosed {
		return false
	}
	a.listener = ln
	return true
}

// establish runs handshake on conn, installs the peer key, and starts the
// read loop.
func (a *Actor) establish(ctx context.Context, conn net.Conn, handshake func(net.Conn) (*[32]byte, error)) error {
	a.mu.Lock()
	if a.State() == StateClosed {
		a.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	a.conn = conn
	a.state.Store(int32(StateHandshaking))
	a.mu.Unlock()

	addr := conn.RemoteAddr().String()
	if err := conn.SetDeadline(time.Now().Add(a.opts.HandshakeTimeout)); err != nil {
		oe := newOpError("handshake", addr, ErrHandshake, err)
		a.closeWith(oe)
		return oe
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(aLongTimeAgo) })
	peer, err := handshake(conn)
	stop()
	if err == nil {
		err = conn.SetDeadline(time.Time{})
	}
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		oe := newOpError("handshake", addr, ErrHandshake, err)
		a.closeWith(oe)
		return oe
	}

	a.writeMu.Lock()
	a.enc.SetRecipient(peer)
	a.writeMu.Unlock()

	a.mu.Lock()
	if a.State() == StateClosed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.state.Store(int32(StateReady))
	a.wg.Add(1)
	a.mu.Unlock()

	close(a.ready)
	go a.readLoop(conn)

	a.log.WithFields(logrus.Fields{
		"function": "establish",
		"remote":   addr,
	}).WithFields(crypto.SecureFieldHash(peer[:], "peer_key")).Info("Connection ready")
	return nil
}

func (a *Actor) readLoop(conn net.Conn) {
	defer a.wg.Done()

	buf := make([]byte, a.opts.ChunkSize)
	for {
		if _, err := io.ReadFull(conn, buf); err != nil {
			a.readFailed(err)
			return
		}
		a.chunksIn.Add(1)

		if !a.limiter.Allow() {
			a.rateLimited.Add(1)
			a.log.WithFields(logrus.Fields{
				"function": "readLoop",
				"error":    ErrRateLimited.Error(),
			}).Debug("Dropped chunk")
			continue
		}

		plain, err := a.dec.AcceptChunk(buf)
		if err != nil {
			a.log.WithFields(logrus.Fields{
				"function": "readLoop",
				"error":    err.Error(),
			}).Debug("Dropped chunk")
			continue
		}

		a.inMu.Lock()
		a.reasm.Feed(plain)
		items := a.reasm.Complete()
		a.inbox = append(a.inbox, items...)
		a.inMu.Unlock()

		for _, item := range items {
			if a.dispatch(item) {
				return
			}
		}
	}
}

// readFailed closes the actor after the read side ends. A failure after our
// own Close or during Shutdown is a clean teardown.
func (a *Actor) readFailed(err error) {
	if a.State() == StateClosed {
		return
	}
	if a.shuttingDown.Load() {
		a.closeWith(nil)
		return
	}
	a.closeWith(newOpError("read", a.remote(), ErrTransport, err))
}

// dispatch hands one completed item to callbacks and reports whether the
// read loop must stop.
func (a *Actor) dispatch(item reassembly.Item) bool {
	if !item.IsEvent() {
		a.messages.Add(1)
		if a.opts.OnEvent != nil {
			for _, ev := range item.Events {
				a.opts.OnEvent(ev)
			}
		}
		if a.opts.OnMessage != nil {
			a.opts.OnMessage(item.Text)
		}
		return false
	}

	ev := *item.Event
	a.events.Add(1)
	if a.opts.OnEvent != nil {
		a.opts.OnEvent(ev)
	}

	switch {
	case a.proto.IsTerminal(ev.Name):
		a.log.WithField("function", "dispatch").Info("Peer requested shutdown")
		a.closeWith(nil)
		return true
	case ev.Name == protocol.EventInput && a.opts.Prompt != nil:
		reply := a.opts.Prompt(ev.Argument)
		if err := a.Send(a.ctx, []byte(reply)); err != nil {
			a.log.WithFields(logrus.Fields{
				"function": "dispatch",
				"error":    err.Error(),
			}).Warn("Failed to send input reply")
		}
	}
	return false
}

// closeWith closes the actor exactly once, recording err as the cause.
func (a *Actor) closeWith(err error) {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		prev := State(a.state.Swap(int32(StateClosed)))
		a.err = err
		conn, ln := a.conn, a.listener
		a.mu.Unlock()

		a.cancel()
		close(a.done)
		if ln != nil {
			ln.Close()
		}
		if conn != nil {
			conn.Close()
		}

		entry := a.log.WithFields(logrus.Fields{
			"function":       "closeWith",
			"previous_state": prev.String(),
		})
		if err != nil {
			entry.WithField("error", err.Error()).Warn("Connection closed with error")
			return
		}
		entry.Info("Connection closed")
	})
}

// Close closes the socket and ends the read loop. It is idempotent.
func (a *Actor) Close() error {
	a.closeWith(nil)
	return nil
}

// Cleanup closes the actor, waits for the read loop to exit, and wipes the
// private key. It must not be called from a callback.
func (a *Actor) Cleanup() {
	a.closeWith(nil)
	a.wg.Wait()
	_ = crypto.WipeKeyPair(a.keys)
	a.writeMu.Lock()
	a.enc.Reset()
	a.writeMu.Unlock()
}

// waitReady blocks until the handshake completes, the actor closes, or ctx ends.
func (a *Actor) waitReady(ctx context.Context) error {
	select {
	case <-a.ready:
	case <-a.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	if a.State() == StateClosed {
		return ErrClosed
	}
	return nil
}

// EnqueueMessage buffers payload for the next Flush.
func (a *Actor) EnqueueMessage(payload []byte) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if a.State() == StateClosed {
		return ErrClosed
	}
	return a.enc.EnqueueMessage(payload)
}

// EnqueueControl buffers a control token for the next Flush.
func (a *Actor) EnqueueControl(name, argument string) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if a.State() == StateClosed {
		return ErrClosed
	}
	return a.enc.EnqueueControl(name, argument)
}

// Flush waits for the handshake and writes everything buffered. Concurrent
// flushes never interleave chunks. A failed write closes the connection.
func (a *Actor) Flush(ctx context.Context) error {
	if err := a.waitReady(ctx); err != nil {
		return err
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.flushLocked(ctx)
}

// Send enqueues payload as one message and flushes it.
func (a *Actor) Send(ctx context.Context, payload []byte) error {
	if err := a.waitReady(ctx); err != nil {
		return err
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err := a.enc.EnqueueMessage(payload); err != nil {
		return err
	}
	return a.flushLocked(ctx)
}

// SendControl enqueues a control event and flushes it.
func (a *Actor) SendControl(ctx context.Context, name, argument string) error {
	if err := a.waitReady(ctx); err != nil {
		return err
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err := a.enc.EnqueueControl(name, argument); err != nil {
		return err
	}
	return a.flushLocked(ctx)
}

func (a *Actor) flushLocked(ctx context.Context) error {
	if a.State() == StateClosed {
		return ErrClosed
	}
	chunks, err := a.enc.Flush()
	if err != nil || len(chunks) == 0 {
		return err
	}

	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()

	var deadline time.Time
	if a.opts.WriteTimeout > 0 {
		deadline = time.Now().Add(a.opts.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return a.writeFailed(err)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetWriteDeadline(aLongTimeAgo) })
	defer stop()

	for _, chunk := range chunks {
		if _, err := conn.Write(chunk); err != nil {
			if ctx.Err() != nil {
				err = errors.Join(ctx.Err(), err)
			}
			return a.writeFailed(err)
		}
		a.chunksOut.Add(1)
	}
	return nil
}

// writeFailed tears the connection down: a partial frame leaves the stream
// unrecoverable.
func (a *Actor) writeFailed(err error) error {
	if a.State() == StateClosed {
		return ErrClosed
	}
	oe := newOpError("write", a.remote(), ErrTransport, err)
	a.closeWith(oe)
	return oe
}

// Shutdown sends the shutdown event and waits for the peer to close its side.
func (a *Actor) Shutdown(ctx context.Context) error {
	if err := a.waitReady(ctx); err != nil {
		return err
	}
	a.shuttingDown.Store(true)

	if err := a.SendControl(ctx, protocol.EventShutdown, ""); err != nil {
		a.closeWith(nil)
		return err
	}

	select {
	case <-a.done:
	case <-ctx.Done():
		a.closeWith(nil)
		return ctx.Err()
	}
	a.wg.Wait()
	return nil
}

// Complete drains messages and events received so far.
func (a *Actor) Complete() []reassembly.Item {
	a.inMu.Lock()
	defer a.inMu.Unlock()
	items := a.inbox
	a.inbox = nil
	return items
}

// All drains the inbox and flushes any partial message still buffered.
func (a *Actor) All() []reassembly.Item {
	a.inMu.Lock()
	defer a.inMu.Unlock()
	items := append(a.inbox, a.reasm.All()...)
	a.inbox = nil
	return items
}
