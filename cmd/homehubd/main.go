// Command homehubd is the telemetry/automation core server. Grounded
// on cmd/cmd_root.go and cmd/cmd_serve.go's cobra wiring.
package main

import (
	"os"

	"github.com/homehub/core/cmd/homehubd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
