package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/shipq/polyq/dburl"
)

func newSyncCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Apply the declared schemas to every backend",
		Long: `Plan and apply schema changes on every backend that supports schema
sync, one backend at a time in configuration order. Operations that a
concurrent run already applied are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), root, cmd)
		},
	}
}

func runSync(ctx context.Context, root *rootOptions, cmd *cobra.Command) error {
	s, err := openSession(root, cmd)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	schemas, err := s.schemas()
	if err != nil {
		return err
	}

	for _, bc := range s.cfg.Backends {
		if !dburl.IsLocalhost(bc.URL) {
			s.out.Warnf("syncing remote backend %s (%s)", bc.Name, dburl.Redact(bc.URL))
		}
	}

	if err := s.connect(ctx); err != nil {
		return err
	}
	if err := s.router.Sync(ctx, schemas); err != nil {
		return err
	}

	s.out.Successf("%d schema(s) in sync", len(schemas))
	return nil
}
