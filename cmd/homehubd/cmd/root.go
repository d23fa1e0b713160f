// Package cmd implements homehubd's cobra command tree. Grounded on
// cmd/cmd_root.go, trimmed to the subset of commands that still make
// sense for a headless telemetry core (no embedded web-app, no CLI
// REPL — those lived on the otto-specific appdir/cli commands this
// module drops).
package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var cmdOutput io.Writer

var rootCmd = &cobra.Command{
	Use:   "homehubd",
	Short: "homehubd is the smart-home telemetry and automation core",
	Long: `homehubd ingests MQTT telemetry, evaluates scene rules and email
alerts, accounts for energy use, and streams live state to UIs over
Server-Sent Events.`,
	Run: func(cmd *cobra.Command, args []string) {
		serveRun(cmd, args)
	},
}

func init() {
	cmdOutput = os.Stdout
	rootCmd.SetOut(cmdOutput)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		slog.Error(err.Error())
		return err
	}
	return nil
}
