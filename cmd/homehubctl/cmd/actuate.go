package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var toggleCmd = &cobra.Command{
	Use:   "toggle <device-id>",
	Short: "Toggle a device's on/off state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseDeviceArg(args[0])
		if err != nil {
			return err
		}
		out, err := getClient().Toggle(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmdOutput, "%+v\n", out)
		return nil
	},
}

var setTempCmd = &cobra.Command{
	Use:   "set-temp <device-id> <value>",
	Short: "Set an AC device's target temperature",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseDeviceArg(args[0])
		if err != nil {
			return err
		}
		value, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid temperature %q", args[1])
		}
		out, err := getClient().SetTemp(id, value)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmdOutput, "%+v\n", out)
		return nil
	},
}

var setFanSpeedCmd = &cobra.Command{
	Use:   "set-fan-speed <device-id> <value>",
	Short: "Set a fan device's speed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseDeviceArg(args[0])
		if err != nil {
			return err
		}
		value, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid fan speed %q", args[1])
		}
		out, err := getClient().SetFanSpeed(id, value)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmdOutput, "%+v\n", out)
		return nil
	},
}

func parseDeviceArg(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid device id %q", s)
	}
	return uint(id), nil
}
