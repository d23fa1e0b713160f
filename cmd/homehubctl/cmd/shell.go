package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run homehubctl in interactive shell mode",
	Long:  `Run homehubctl in interactive shell mode`,
	Run:   shellRun,
}

var rl *readline.Instance

func initReadline() {
	completer := readline.NewPrefixCompleter()
	for _, child := range rootCmd.Commands() {
		pcFromCommands(completer, child)
	}

	var err error
	rl, err = readline.NewEx(&readline.Config{
		Prompt:            "homehub\033[31m»\033[0m ",
		HistoryFile:       "/tmp/homehubctl_history.tmp",
		AutoComplete:      completer,
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	rl.CaptureExitSignal()
}

func pcFromCommands(parent readline.PrefixCompleterInterface, c *cobra.Command) {
	pc := readline.PcItem(c.Use)
	parent.SetChildren(append(parent.GetChildren(), pc))
	for _, child := range c.Commands() {
		pcFromCommands(pc, child)
	}
}

func shellRun(cmd *cobra.Command, args []string) {
	initReadline()
	defer rl.Close()

	running := true
	for running {
		running = shellLine()
	}
	fmt.Fprintln(cmdOutput, "Good bye!")
}

func shellLine() bool {
	line, err := rl.Readline()
	switch err {
	case readline.ErrInterrupt:
		return len(line) != 0
	case io.EOF:
		return false
	}
	return RunLine(line)
}

// RunLine dispatches one shell line against rootCmd's subcommands. A
// package variable so tests can stub it.
var RunLine = func(line string) bool {
	line = strings.TrimSpace(line)
	if line == "exit" || line == "quit" {
		return false
	}
	if line == "" {
		return true
	}

	args := strings.Fields(line)
	cmd, cmdArgs, err := rootCmd.Find(args)
	if err != nil {
		fmt.Fprintf(cmdOutput, "error running %q: %s\n", line, err)
		return true
	}
	if err := cmd.ParseFlags(cmdArgs); err != nil {
		fmt.Fprintf(cmdOutput, "error parsing flags for %q: %s\n", line, err)
		return true
	}
	if cmd.RunE != nil {
		if err := cmd.RunE(cmd, cmd.Flags().Args()); err != nil {
			fmt.Fprintf(cmdOutput, "error: %s\n", err)
		}
	} else if cmd.Run != nil {
		cmd.Run(cmd, cmd.Flags().Args())
	}
	return true
}
