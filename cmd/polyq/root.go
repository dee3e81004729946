package main

import (
	"github.com/spf13/cobra"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	Dir string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "polyq",
		Short: "polyq - one query model, many backends",
		Long: `polyq keeps relational and document backends in step with a set of
declared schemas, and compiles backend-neutral queries for each of them.

Backends are configured in polyq.ini as [backend.<name>] sections.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Dir, "dir", "", "directory containing polyq.ini (default: current directory)")

	cmd.AddCommand(newInitCommand(opts))
	cmd.AddCommand(newPlanCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newCompileCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newServeCommand(opts))

	return cmd
}
