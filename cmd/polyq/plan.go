package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// planOptions holds flags for the plan command.
type planOptions struct {
	*rootOptions
	Watch bool
}

func newPlanCommand(root *rootOptions) *cobra.Command {
	opts := &planOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the schema changes sync would apply",
		Long: `Introspect every backend that supports schema sync and print the
operations needed to bring it in line with the declared schemas.

Nothing is applied. With --watch, the plan is recomputed whenever the
schema file changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "re-plan whenever the schema file changes")

	return cmd
}

func runPlan(ctx context.Context, opts *planOptions, cmd *cobra.Command) error {
	s, err := openSession(opts.rootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	if err := s.connect(ctx); err != nil {
		return err
	}
	if err := s.plan(ctx); err != nil {
		return err
	}
	if !opts.Watch {
		return nil
	}

	w, err := newSchemaWatcher(s.cfg.SchemasPath(), 200*time.Millisecond, s.logger)
	if err != nil {
		return err
	}
	defer w.Close()

	s.out.Infof("watching %s", s.cfg.SchemasPath())
	return w.Run(ctx, func() {
		if err := s.plan(ctx); err != nil {
			s.out.Warnf("plan failed: %v", err)
		}
	})
}

// plan prints one block per syncable backend, in registration order.
func (s *session) plan(ctx context.Context) error {
	schemas, err := s.schemas()
	if err != nil {
		return err
	}
	plans, err := s.router.PlanSync(ctx, schemas)
	if err != nil {
		return err
	}

	for _, name := range s.router.Names() {
		p, ok := plans[name]
		if !ok {
			continue
		}
		if p.Empty() {
			s.out.Successf("%s: up to date", name)
			continue
		}
		s.out.Infof("%s (%s): %d operation(s)", name, p.Family, len(p.Operations))
		for _, line := range p.Log {
			s.out.Infof("  %s", line)
		}
	}
	return nil
}
