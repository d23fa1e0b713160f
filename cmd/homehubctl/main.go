// Command homehubctl is a thin REST client for a running homehubd.
package main

import (
	"os"

	"github.com/homehub/core/cmd/homehubctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
