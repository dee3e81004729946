package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shipq/polyq/cli"
	"github.com/shipq/polyq/internal/config"
)

const starterSchemas = `schemas:
  - name: users
    fields:
      - {name: email, type: string, required: true}
      - {name: name, type: string}
      - {name: joined, type: date}
`

// initOptions holds flags for the init command.
type initOptions struct {
	*rootOptions
	URL string
}

func newInitCommand(root *rootOptions) *cobra.Command {
	opts := &initOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create polyq.ini and a starter schema file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "sqlite:polyq.db", "URL of the primary backend")

	return cmd
}

func runInit(opts *initOptions, cmd *cobra.Command) error {
	out := cli.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())

	dir := opts.Dir
	if dir == "" {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	exists, err := config.Exists(dir)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s already exists in %s", config.ConfigFilename, dir)
	}

	if err := config.Template(opts.URL).WriteFile(filepath.Join(dir, config.ConfigFilename)); err != nil {
		return fmt.Errorf("failed to write %s: %w", config.ConfigFilename, err)
	}
	out.Successf("created %s", config.ConfigFilename)

	schemas := filepath.Join(dir, "schemas.yaml")
	if _, err := os.Stat(schemas); os.IsNotExist(err) {
		if err := os.WriteFile(schemas, []byte(starterSchemas), 0o644); err != nil {
			return fmt.Errorf("failed to write schemas.yaml: %w", err)
		}
		out.Successf("created schemas.yaml")
	} else {
		out.Infof("keeping existing schemas.yaml")
	}

	out.Info("")
	out.Info("Next steps:")
	out.Info("  polyq plan    # show what sync would change")
	out.Info("  polyq sync    # apply it")
	return nil
}
