package main

import (
	"fmt"
	"os"

	"github.com/roach88/repro/internal/cli"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the root command and returns the process exit code.
func run(args []string) int {
	cmd := cli.NewRootCommand()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.GetExitCode(err)
	}
	return 0
}
