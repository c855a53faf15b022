package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/opd-ai/securesocket"
	"github.com/opd-ai/securesocket/protocol"
	"github.com/opd-ai/securesocket/transport"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const loopbackAnswer = "loopback"

var loopbackCmd = &cobra.Command{
	Use:   "loopback [message...]",
	Short: "Run both peers in-process and exchange a few messages",
	Long: `Start a server and a client on a free loopback port with a fresh
protocol configuration, send each argument as a message, issue one input
request answered by the server, and shut both peers down.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = []string{"HELLO"}
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return loopback(ctx, cmd.OutOrStdout(), args)
	},
}

func init() {
	RootCmd.AddCommand(loopbackCmd)
	loopbackCmd.Flags().Duration("timeout", 10*time.Second, "Give up after this long")
}

// lockedWriter serializes writes from the callbacks of both peers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func loopback(ctx context.Context, w io.Writer, messages []string) error {
	out := &lockedWriter{w: w}

	proto, err := protocol.New()
	if err != nil {
		return err
	}
	port, err := transport.FindAvailablePort()
	if err != nil {
		return err
	}

	received := make(chan []byte, len(messages))
	srvOpts := loopbackOptions(proto)
	srvOpts.OnMessage = func(text []byte) { received <- text }
	srvOpts.Prompt = func(prompt string) string {
		fmt.Fprintf(out, "server prompted %q, answering %q\n", prompt, loopbackAnswer)
		return loopbackAnswer
	}

	replies := make(chan []byte, 1)
	cliOpts := loopbackOptions(proto)
	cliOpts.OnMessage = func(text []byte) { replies <- text }

	var srv *securesocket.Server
	var cli *securesocket.Client
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		srv, err = securesocket.Listen(gctx, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), srvOpts)
		return err
	})
	g.Go(func() (err error) {
		cli, err = securesocket.Dial(gctx, "127.0.0.1", port, cliOpts)
		return err
	})
	err = g.Wait()
	if srv != nil {
		defer srv.Cleanup()
	}
	if cli != nil {
		defer cli.Cleanup()
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "connected on port %d\n", port)

	for _, m := range messages {
		if err := cli.Send(ctx, []byte(m)); err != nil {
			return err
		}
	}
	for range messages {
		select {
		case text := <-received:
			fmt.Fprintf(out, "server received %q\n", text)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := cli.SendControl(ctx, protocol.EventInput, "Name:"); err != nil {
		return err
	}
	select {
	case text := <-replies:
		fmt.Fprintf(out, "client received %q\n", text)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := cli.Shutdown(ctx); err != nil {
		return err
	}
	select {
	case <-srv.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	fmt.Fprintln(out, "both peers closed")
	return srv.Err()
}

func loopbackOptions(proto *protocol.Protocol) *securesocket.Options {
	opts := securesocket.NewOptions()
	opts.Protocol = proto
	opts.Retry.Delay = 20 * time.Millisecond
	opts.Logger = log
	return opts
}
