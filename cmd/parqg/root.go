// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootFlags struct {
	verbose   bool
	logFormat string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "parqg",
		Short: "Parallel branch-and-bound for convex MINLPs",
		Long: "parqg solves convex mixed-integer nonlinear programs with a parallel\n" +
			"LP/NLP branch-and-bound driven by outer-approximation cuts.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if f := cmd.Flag("log-format"); f != nil && f.Changed && flags.logFormat != "text" && flags.logFormat != "json" {
				return fmt.Errorf("--log-format must be text or json, got %q", flags.logFormat)
			}
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Log at debug level")
	pf.StringVar(&flags.logFormat, "log-format", "text", "Log format: text or json")

	root.AddCommand(newSolveCmd(flags))
	root.AddCommand(newVersionCmd())
	root.Version = version

	return root
}
