package migrate

import (
	"context"
	"fmt"
	"log/slog"
)

// Applier executes single operations against a backend and recognizes the
// backend's "already exists" errors.
type Applier interface {
	Apply(ctx context.Context, op Operation) error

	// IsConflict reports whether err means the operation was already
	// applied, for example by a concurrent run.
	IsConflict(err error) bool
}

// Sync applies the plan's operations in order. Conflicts are logged and
// skipped; any other error stops the run and is returned.
func Sync(ctx context.Context, plan Plan, applier Applier, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	for i, op := range plan.Operations {
		line := ""
		if i < len(plan.Log) {
			line = plan.Log[i]
		}

		err := applier.Apply(ctx, op)
		if err == nil {
			logger.Info("migration_applied",
				"family", string(plan.Family),
				"kind", string(op.Kind),
				"table", op.Table,
				"plan", line,
			)
			continue
		}

		if applier.IsConflict(err) {
			logger.Warn("migration_conflict_skipped",
				"family", string(plan.Family),
				"kind", string(op.Kind),
				"table", op.Table,
				"plan", line,
				"error", err.Error(),
			)
			continue
		}

		return fmt.Errorf("failed to apply %s on %s: %w", op.Kind, op.Table, err)
	}

	return nil
}
