package main

import (
	"os"

	"github.com/xaenox/stylist-bot/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
