// Command stagehand is the CLI entrypoint for the pipeline orchestrator.
package main

import (
	"fmt"
	"os"

	"github.com/hollowbranch/stagehand/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
