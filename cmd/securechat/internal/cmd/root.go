// Package cmd implements the securechat CLI commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.New()

// RootCmd is the base "securechat" command.
var RootCmd = &cobra.Command{
	Use:   "securechat",
	Short: "Encrypted chunked chat over a single TCP connection",
	Long: `securechat connects two peers that share a protocol configuration file.

Generate the file once with "securechat genconfig", copy it to the other
peer over a trusted channel, then run "securechat serve" on one side and
"securechat connect" on the other.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(cmd.Flag("log-level").Value.String())
		if err != nil {
			return err
		}
		log.SetLevel(level)
		logrus.SetLevel(level)
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		log.SetOutput(os.Stderr)
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().String("log-level", "warning", "Log level (debug, info, warning, error)")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := RootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
