package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "leadctl",
		Short:         "Operator tools for the lead qualification engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("scoring-config", "", "YAML file with industry multipliers")
	root.AddCommand(newScoreCmd(), newSimulateCmd())
	return root
}
