// Command journeyctl is the operator CLI for member journeys: inspect a
// journey, draw its branches, prune inactive branches, purge expired
// journeys and mint development tokens.
package main

import (
	"fmt"
	"os"

	"memberportal/internal/platform/config"
)

func main() {
	if err := newRootCmd(deps{open: openBackend, loadConfig: config.Load}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
