// Package cli implements the stylist commands.
package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "stylist",
	Short: "Conversational fashion assistant",
	Long:  "Runs the stylist as a Telegram bot or an HTTP/websocket service, and manages the selected AI model.",

	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file (optional)")
}
