// Command verdant records and inspects notebook version histories.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/verdant/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
