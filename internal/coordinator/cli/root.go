package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "jobdispatch",
		Short: "Job dispatch service",
		Long: `Pairs submitted jobs with registered workers in arrival order.
Jobs wait in a queue until a worker registers; workers wait with a
callback URL until a job arrives.`,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
