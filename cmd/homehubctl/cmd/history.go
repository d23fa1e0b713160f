package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var historyRange string

var historyCmd = &cobra.Command{
	Use:   "history <device-id>",
	Short: "Show a device's recent history points",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid device id %q", args[0])
		}
		points, err := getClient().DeviceHistory(uint(id), historyRange)
		if err != nil {
			return err
		}
		for _, p := range points {
			fmt.Fprintf(cmdOutput, "%+v\n", p)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyRange, "range", "24h", "one of 24h|3d|7d")
}
