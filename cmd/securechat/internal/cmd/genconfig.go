package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/opd-ai/securesocket"
	"github.com/spf13/cobra"
)

var genconfigCmd = &cobra.Command{
	Use:   "genconfig",
	Short: "Write a configuration file with a fresh comm code",
	Long: `Write a TOML configuration file containing a freshly generated
[protocol] section and the default [transport] settings. Both peers must
use the same file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		force, _ := cmd.Flags().GetBool("force")
		return genconfig(out, force)
	},
}

func init() {
	RootCmd.AddCommand(genconfigCmd)
	genconfigCmd.Flags().StringP("out", "o", "securechat.toml", "Path of the configuration file to write")
	genconfigCmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")
}

func genconfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	cfg, err := securesocket.GenerateConfig()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := securesocket.WriteConfig(&buf, cfg); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return err
	}

	log.WithField("path", path).Info("Configuration written")
	return nil
}
