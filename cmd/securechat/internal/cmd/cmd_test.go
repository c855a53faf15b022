package cmd

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/securesocket"
	"github.com/opd-ai/securesocket/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.PanicLevel)
}

type call struct {
	kind string
	name string
	data string
}

// fakePeer records what the chat loop asks of it.
type fakePeer struct {
	mu    sync.Mutex
	calls []call
	done  chan struct{}
	once  sync.Once
}

func newFakePeer() *fakePeer { return &fakePeer{done: make(chan struct{})} }

func (f *fakePeer) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakePeer) Send(ctx context.Context, payload []byte) error {
	f.record(call{kind: "send", data: string(payload)})
	return nil
}

func (f *fakePeer) SendControl(ctx context.Context, name, argument string) error {
	f.record(call{kind: "control", name: name, data: argument})
	return nil
}

func (f *fakePeer) Shutdown(ctx context.Context) error {
	f.record(call{kind: "shutdown"})
	f.once.Do(func() { close(f.done) })
	return nil
}

func (f *fakePeer) Done() <-chan struct{} { return f.done }
func (f *fakePeer) Err() error            { return nil }

func TestChatCommands(t *testing.T) {
	p := newFakePeer()
	c := newConsole(io.Discard)
	in := strings.NewReader("hello\n/input Name?\n[not a token]\n/quit\nignored\n")

	require.NoError(t, chat(context.Background(), p, c, in))
	assert.Equal(t, []call{
		{kind: "send", data: "hello"},
		{kind: "control", name: protocol.EventInput, data: "Name?"},
		{kind: "send", data: "[not a token]"},
		{kind: "shutdown"},
	}, p.calls)
}

func TestChatShutsDownOnEOF(t *testing.T) {
	p := newFakePeer()
	require.NoError(t, chat(context.Background(), p, newConsole(io.Discard), strings.NewReader("")))
	assert.Equal(t, []call{{kind: "shutdown"}}, p.calls)
}

func TestChatEndsWhenPeerCloses(t *testing.T) {
	p := newFakePeer()
	close(p.done)
	pr, pw := io.Pipe()
	defer pw.Close()

	require.NoError(t, chat(context.Background(), p, newConsole(io.Discard), pr))
	assert.Empty(t, p.calls)
}

func TestConsoleRoutesLineToPrompt(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(&out)
	assert.False(t, c.route("nobody waiting"))

	answer := make(chan string, 1)
	go func() { answer <- c.prompt("Name: ") }()

	require.Eventually(t, func() bool { return c.route("Bob") }, time.Second, time.Millisecond)
	assert.Equal(t, "Bob", <-answer)

	c.outMu.Lock()
	assert.Equal(t, "Name: ", out.String())
	c.outMu.Unlock()
}

func TestConsolePromptReturnsOnClose(t *testing.T) {
	c := newConsole(io.Discard)
	answer := make(chan string, 1)
	go func() { answer <- c.prompt("? ") }()
	c.close()
	c.close()
	assert.Equal(t, "", <-answer)
}

func TestGenconfigWritesLoadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "securechat.toml")
	require.NoError(t, genconfig(path, false))

	opts, err := securesocket.LoadConfig(path)
	require.NoError(t, err)
	assert.NotNil(t, opts.Protocol)

	assert.Error(t, genconfig(path, false), "refuses to overwrite")
	assert.NoError(t, genconfig(path, true))
}

func TestLoopback(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, loopback(ctx, &out, []string{"HELLO", "[x::y]"}))

	got := out.String()
	assert.Contains(t, got, `server received "HELLO"`)
	assert.Contains(t, got, `server received "[x::y]"`)
	assert.Contains(t, got, `server prompted "Name:"`)
	assert.Contains(t, got, `client received "loopback"`)
	assert.Contains(t, got, "both peers closed")
}
