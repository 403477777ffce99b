// Package main provides the entry point for frontendsim.
// frontendsim is a decoupled front-end simulator: branch prediction,
// Fetch Target construction, the decoupled front-end FSM, the uop cache
// and the uop queue, driven from a recorded instruction trace.
//
// For the full CLI, use: go run ./cmd/frontendsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("frontendsim - decoupled front-end simulator")
	fmt.Println("")
	fmt.Println("Usage: frontendsim [options] <trace.json>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config    Path to front-end configuration JSON file")
	fmt.Println("  -cycles    Cycles to run, 0 for until the trace is exhausted")
	fmt.Println("  -csv       Path to write a per-core statistics CSV report")
	fmt.Println("  -v         Verbose per-cycle tracing")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/frontendsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/frontendsim' instead.")
	}
}
