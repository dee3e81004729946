package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shipq/polyq/capability"
	"github.com/shipq/polyq/query"
	"github.com/shipq/polyq/query/compile"
)

// queryOptions holds flags shared by commands that take a query file.
type queryOptions struct {
	*rootOptions
	Backend string
}

func newCompileCommand(root *rootOptions) *cobra.Command {
	opts := &queryOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "compile <query.json>",
		Short: "Print the native form of a query for each backend",
		Long: `Read a serialized query AST and print what each configured backend
would execute: parameterized SQL for relational backends, a database
command for document backends. No backend is contacted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Backend, "backend", "b", "", "only compile for this backend")

	return cmd
}

func readQuery(path string) (query.AST, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return query.AST{}, fmt.Errorf("failed to read query: %w", err)
	}
	var ast query.AST
	if err := json.Unmarshal(data, &ast); err != nil {
		return query.AST{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return ast, nil
}

func runCompile(opts *queryOptions, path string, cmd *cobra.Command) error {
	ast, err := readQuery(path)
	if err != nil {
		return err
	}
	s, err := openSession(opts.rootOptions, cmd)
	if err != nil {
		return err
	}

	names := s.router.Names()
	if opts.Backend != "" {
		if _, ok := s.router.Backend(opts.Backend); !ok {
			return fmt.Errorf("unknown backend %q", opts.Backend)
		}
		names = []string{opts.Backend}
	}

	for _, name := range names {
		a, _ := s.router.Backend(name)
		s.out.Infof("-- %s", name)

		if err := capability.Validate(ast, a.Capabilities()); err != nil {
			s.out.Warnf("%v", capability.ForBackend(err, name))
			continue
		}
		compiled, err := a.Compile(ast)
		if err != nil {
			return err
		}
		s.out.Info(compiled.String())
		if stmt, ok := compiled.(compile.Statement); ok && len(stmt.Args) > 0 {
			s.out.Infof("-- args: %v", stmt.Args)
		}
	}
	return nil
}
