// Package cmd implements homehubctl's cobra command tree: a thin REST
// client over a running homehubd. Grounded on
// cmd/ottoctl/cmd_root.go's --server flag and GetClient() pattern.
package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/homehub/core/client"
)

var (
	cmdOutput io.Writer
	serverURL string
	cli       *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "homehubctl",
	Short: "homehubctl is a command-line client for homehubd",
	Long:  `homehubctl queries and actuates a running homehub server over its HTTP API.`,
}

func init() {
	cmdOutput = os.Stdout
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8011", "homehub server URL")
	rootCmd.SetOut(cmdOutput)

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(energyCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(setTempCmd)
	rootCmd.AddCommand(setFanSpeedCmd)
	rootCmd.AddCommand(shellCmd)
}

// getClient lazily builds the client from --server, falling back to
// HOMEHUB_SERVER (when set) if --server was not given on the command line.
func getClient() *client.Client {
	if cli != nil {
		return cli
	}
	url := serverURL
	if !rootCmd.PersistentFlags().Changed("server") {
		if env := os.Getenv("HOMEHUB_SERVER"); env != "" {
			url = env
		}
	}
	cli = client.NewClient(url)
	return cli
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		slog.Error(err.Error())
		return err
	}
	return nil
}
