package main

import (
	"fmt"
	"os"

	"github.com/roach88/chartgen/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "chartgen:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
