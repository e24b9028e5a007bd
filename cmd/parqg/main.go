// SPDX-License-Identifier: MIT

// Command parqg solves convex MINLP model files with the parallel
// branch-and-bound solver.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
