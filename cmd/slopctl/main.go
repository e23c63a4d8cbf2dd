// Command slopctl is the host-side control tool for the SlopOS kernel
// core: it parses boot command lines, runs the integration-test suites
// against a simulated backend, and decodes interrupt frames for
// debugging. It is the host-side analogue of the teacher's own cmd/
// directory of subcommands, built with the same CLI library.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "slopctl: %v\n", err)
		os.Exit(1)
	}
}
