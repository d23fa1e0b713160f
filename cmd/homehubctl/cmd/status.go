package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the server's bus connection status",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := getClient().BusStatus()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmdOutput, "mqtt_connected: %v\n", status["mqtt_connected"])
		return nil
	},
}
