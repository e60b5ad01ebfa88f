// Command agentcore runs the self-determining task executor described by
// this module's execution core: given a natural-language request, it
// assesses, decomposes, executes, and verifies the work, streaming its
// progress to the terminal as it goes.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/agentcore/cmd/agentcore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
