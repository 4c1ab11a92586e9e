// Package cli implements the surge command line.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/surge/internal/transport"
)

var version = transport.Version

// errThresholdsFailed is returned when a run completes but its thresholds
// do not pass. The summary already explains why, so it is not printed.
var errThresholdsFailed = errors.New("thresholds failed")

// RootCmd represents the base command when called without any subcommands
var RootCmd = NewRootCmd()

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "surge",
		Short:   "A virtual-user HTTP load generator",
		Version: version,
		Long: `Surge drives an HTTP service with a changing population of virtual users.

Each virtual user runs a scenario in a loop while a stage schedule ramps the
population up and down. At the end surge prints a summary that separates
failed requests from failed checks, and exits non-zero when a threshold fails.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	return root
}

// Execute runs the root command and reports errors on stderr.
func Execute() error {
	err := RootCmd.Execute()
	if err != nil && !errors.Is(err, errThresholdsFailed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}
