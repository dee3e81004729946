package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/shipq/polyq/query"
)

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &queryOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "run <query.json>",
		Short: "Execute a query and print the rows as JSON lines",
		Long: `Read a serialized query AST, route it by intent (or to --backend) and
print each result row as one JSON object per line.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Backend, "backend", "b", "", "run on this backend instead of routing by intent")

	return cmd
}

func runQuery(ctx context.Context, opts *queryOptions, path string, cmd *cobra.Command) error {
	ast, err := readQuery(path)
	if err != nil {
		return err
	}
	s, err := openSession(opts.rootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	if err := s.connect(ctx); err != nil {
		return err
	}

	var rows []query.Row
	if opts.Backend != "" {
		rows, err = s.router.ExecuteOn(ctx, opts.Backend, ast)
	} else {
		rows, err = s.router.Execute(ctx, ast)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}
