// Command marketcache is the operator CLI for the market-data segment
// cache: inspect, clear, and verify the on-disk cache directory described
// by spec §6, without going through a provider-backed Orchestrator.
package main

import (
	"fmt"
	"os"

	"github.com/javi11/marketcache/cmd/marketcache/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
