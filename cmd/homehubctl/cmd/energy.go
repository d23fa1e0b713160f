package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var (
	energyRange     string
	energyDeviceIDs string
)

var energyCmd = &cobra.Command{
	Use:   "energy",
	Short: "Query energy usage analysis",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(energyDeviceIDs)
		if err != nil {
			return err
		}
		report, err := getClient().EnergyAnalysis(energyRange, ids)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmdOutput, "%+v\n", report)
		return nil
	},
}

func init() {
	energyCmd.Flags().StringVar(&energyRange, "range", "", "one of 6h|24h|3d|7d|30d (omit for monthly projection)")
	energyCmd.Flags().StringVar(&energyDeviceIDs, "devices", "", "comma-separated device ids")
}

func parseIDs(raw string) ([]uint, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []uint
	for _, s := range strings.Split(raw, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid device id %q", s)
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}
