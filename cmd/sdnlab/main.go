package main

import (
	"fmt"
	"os"

	"github.com/moby/sys/reexec"
)

func main() {
	// Must run first: namespace children re-execute this binary.
	if reexec.Init() {
		return
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
