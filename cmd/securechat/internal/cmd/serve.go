package cmd

import (
	"github.com/opd-ai/securesocket"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Wait for a peer and start chatting",
	Long: `Listen on --addr for one peer, complete the handshake, and forward
stdin lines as messages.

  /input <prompt>   ask the peer to answer a prompt
  /quit             end the session on both sides`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, _ := cmd.Flags().GetString("config")
		addr, _ := cmd.Flags().GetString("addr")

		opts, err := loadOptions(config)
		if err != nil {
			return err
		}
		c := newConsole(cmd.OutOrStdout())
		c.install(opts)

		c.printf("waiting for a peer on %s\n", addr)
		srv, err := securesocket.Listen(cmd.Context(), addr, opts)
		if err != nil {
			return err
		}
		defer srv.Cleanup()

		c.printf("connected to %s\n", srv.RemoteAddr())
		return chat(cmd.Context(), srv, c, cmd.InOrStdin())
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("config", "c", "securechat.toml", "Path to the shared configuration file")
	serveCmd.Flags().StringP("addr", "a", "127.0.0.1:9000", "Address to listen on")
}
