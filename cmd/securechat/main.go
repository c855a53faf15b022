// Command securechat runs an interactive encrypted chat between two peers.
package main

import "github.com/opd-ai/securesocket/cmd/securechat/internal/cmd"

func main() {
	cmd.Execute()
}
