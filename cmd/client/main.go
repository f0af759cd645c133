package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:   "conference",
	Short: "Command line participant for a conference server",
	Long: `conference joins a room on a conference server, publishes audio and video
from local files and prints who is in the room along with the chat.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to the yaml config file")
	rootCmd.AddCommand(newJoinCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
