package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/opd-ai/securesocket"
	"github.com/opd-ai/securesocket/protocol"
	"github.com/opd-ai/securesocket/transport"
)

const shutdownTimeout = 5 * time.Second

var errQuit = errors.New("quit")

// peer is the part of a connected actor the chat loop drives.
type peer interface {
	Send(ctx context.Context, payload []byte) error
	SendControl(ctx context.Context, name, argument string) error
	Shutdown(ctx context.Context) error
	Done() <-chan struct{}
	Err() error
}

// console serializes terminal output and routes the next input line to a
// pending prompt from the peer.
type console struct {
	outMu sync.Mutex
	out   io.Writer

	mu      sync.Mutex
	pending chan string
	quit    chan struct{}
	once    sync.Once
}

func newConsole(out io.Writer) *console {
	return &console{out: out, quit: make(chan struct{})}
}

func (c *console) printf(format string, args ...interface{}) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// install wires the console into opts callbacks.
func (c *console) install(opts *securesocket.Options) {
	opts.OnMessage = func(text []byte) {
		c.printf("peer> %s\n", text)
	}
	opts.OnEvent = func(ev protocol.ControlEvent) {
		switch ev.Name {
		case protocol.EventInput:
		case protocol.EventShutdown:
			c.printf("* peer ended the session\n")
		default:
			c.printf("* %s\n", ev)
		}
	}
	opts.Prompt = c.prompt
}

// prompt runs on the read loop and blocks it until the user answers.
func (c *console) prompt(text string) string {
	ch := make(chan string, 1)
	c.mu.Lock()
	c.pending = ch
	c.mu.Unlock()

	c.printf("%s", text)
	select {
	case line := <-ch:
		return line
	case <-c.quit:
		return ""
	}
}

// route hands line to a waiting prompt and reports whether it did.
func (c *console) route(line string) bool {
	c.mu.Lock()
	ch := c.pending
	c.pending = nil
	c.mu.Unlock()
	if ch == nil {
		return false
	}
	ch <- line
	return true
}

func (c *console) close() {
	c.once.Do(func() { close(c.quit) })
}

// chat forwards lines from in to p until the user quits, input ends, the
// peer closes, or ctx is cancelled.
func chat(ctx context.Context, p peer, c *console, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	defer c.close()

	for {
		select {
		case <-ctx.Done():
			return shutdown(p)
		case <-p.Done():
			return p.Err()
		case line, ok := <-lines:
			if !ok {
				return shutdown(p)
			}
			if c.route(line) {
				continue
			}
			err := handleLine(ctx, p, line)
			if errors.Is(err, errQuit) {
				return shutdown(p)
			}
			if err != nil {
				return err
			}
		}
	}
}

func handleLine(ctx context.Context, p peer, line string) error {
	switch {
	case line == "/quit":
		return errQuit
	case line == "/input" || strings.HasPrefix(line, "/input "):
		prompt := strings.TrimSpace(strings.TrimPrefix(line, "/input"))
		return p.SendControl(ctx, protocol.EventInput, prompt)
	default:
		return p.Send(ctx, []byte(line))
	}
}

func shutdown(p peer) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil && !errors.Is(err, transport.ErrClosed) {
		return err
	}
	return nil
}

// loadOptions reads the shared configuration and attaches the CLI logger.
func loadOptions(path string) (*securesocket.Options, error) {
	opts, err := securesocket.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	opts.Logger = log
	return opts, nil
}
