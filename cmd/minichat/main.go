package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "minichat",
		Short: "A minimal publish/subscribe chat server",
		Long: `Mini-chats is an in-process publish/subscribe message router for
real-time chat: clients connect over WebSocket, subscribe to named
channels, and publish messages that fan out to current subscribers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
