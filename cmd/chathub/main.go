package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chathubhq/chathub/internal/version"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "chathub",
		Short: "ChatHub: multi-platform messaging hub for operator teams",
		Long:  "ChatHub ingests Telegram, WhatsApp and Kwork conversations into one canonical inbox and dispatches operator replies back through the originating platform.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml (default: CONFIG_PATH env or ./config.toml)")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and webhook pipeline",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.GetInfo())
		},
	}
}
