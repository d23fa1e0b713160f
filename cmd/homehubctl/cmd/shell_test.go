package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShellCmdRegistration(t *testing.T) {
	assert.NotNil(t, shellCmd)
	assert.Equal(t, "shell", shellCmd.Use)

	found := false
	for _, c := range rootCmd.Commands() {
		if c == shellCmd {
			found = true
		}
	}
	assert.True(t, found, "shellCmd should be registered on rootCmd")
}

func TestRunLineExitsOnExitOrQuit(t *testing.T) {
	assert.False(t, RunLine("exit"))
	assert.False(t, RunLine("quit"))
}

func TestRunLineIgnoresBlankLine(t *testing.T) {
	assert.True(t, RunLine(""))
	assert.True(t, RunLine("   "))
}

func TestRunLineReportsUnknownCommand(t *testing.T) {
	assert.True(t, RunLine("bogus-command"))
}

func TestInitReadlineDoesNotPanic(t *testing.T) {
	if rl != nil {
		rl.Close()
		rl = nil
	}
	assert.NotPanics(t, initReadline)
	if rl != nil {
		rl.Close()
		rl = nil
	}
}
