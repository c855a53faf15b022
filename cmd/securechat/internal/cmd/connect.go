package cmd

import (
	"github.com/opd-ai/securesocket"
	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a waiting peer and start chatting",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, _ := cmd.Flags().GetString("config")
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")

		opts, err := loadOptions(config)
		if err != nil {
			return err
		}
		c := newConsole(cmd.OutOrStdout())
		c.install(opts)

		cli, err := securesocket.Dial(cmd.Context(), host, port, opts)
		if err != nil {
			return err
		}
		defer cli.Cleanup()

		c.printf("connected to %s\n", cli.Target())
		return chat(cmd.Context(), cli, c, cmd.InOrStdin())
	},
}

func init() {
	RootCmd.AddCommand(connectCmd)
	connectCmd.Flags().StringP("config", "c", "securechat.toml", "Path to the shared configuration file")
	connectCmd.Flags().String("host", "127.0.0.1", "Host of the serving peer")
	connectCmd.Flags().IntP("port", "p", 9000, "Port of the serving peer")
}
