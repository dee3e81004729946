package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shipq/polyq/backend"
	_ "github.com/shipq/polyq/backend/mongobackend"
	_ "github.com/shipq/polyq/backend/sqlbackend"
	"github.com/shipq/polyq/cli"
	"github.com/shipq/polyq/dburl"
	"github.com/shipq/polyq/internal/config"
	"github.com/shipq/polyq/internal/project"
	"github.com/shipq/polyq/logging"
	"github.com/shipq/polyq/migrate"
	"github.com/shipq/polyq/observe"
	"github.com/shipq/polyq/router"
)

// session is the loaded configuration plus one router holding every
// configured backend. Backends are not connected until connect is called.
type session struct {
	cfg    *config.PolyqConfig
	logger *slog.Logger
	router *router.Router
	out    *cli.Printer
}

func openSession(opts *rootOptions, cmd *cobra.Command) (*session, error) {
	root, err := project.Resolve(opts.Dir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root.Dir)
	if err != nil {
		return nil, err
	}
	if len(cfg.Backends) == 0 {
		return nil, fmt.Errorf("no backends configured\n" +
			"  Hint: add a [backend.primary] section to polyq.ini or set DATABASE_URL")
	}

	logger, err := logging.New(cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	r := router.New(router.WithLogger(logger), router.WithObserver(observe.NewLogger(logger)))
	mopts := migrate.Options{EnforceRequired: cfg.Migrate.EnforceRequired}
	for _, bc := range cfg.Backends {
		a, err := openBackend(bc, cfg.ConfigDir, logger, mopts)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", bc.Name, err)
		}
		r.Register(bc.Name, a)
	}

	return &session{
		cfg:    cfg,
		logger: logger,
		router: r,
		out:    cli.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr()),
	}, nil
}

// openBackend builds the adapter registered for the backend's dialect.
func openBackend(bc config.BackendConfig, dir string, logger *slog.Logger, mopts migrate.Options) (backend.Adapter, error) {
	return backend.Open(bc.Name, resolveSQLitePath(bc, dir),
		backend.WithLogger(logger), backend.WithMigrateOptions(mopts))
}

// resolveSQLitePath anchors relative SQLite file paths at the config
// directory so commands behave the same from any working directory.
func resolveSQLitePath(bc config.BackendConfig, dir string) string {
	if bc.Dialect != dburl.DialectSQLite {
		return bc.URL
	}
	path := dburl.SQLiteURLToPath(bc.URL)
	if path == ":memory:" || filepath.IsAbs(path) {
		return bc.URL
	}
	return "sqlite:" + filepath.Join(dir, path)
}

// connect connects every backend, stopping at the first failure.
func (s *session) connect(ctx context.Context) error {
	for _, name := range s.router.Names() {
		a, _ := s.router.Backend(name)
		if err := a.Connect(ctx); err != nil {
			return err
		}
		s.logger.Debug("backend_connected", "backend", name)
	}
	return nil
}

func (s *session) close(ctx context.Context) {
	if err := s.router.Close(ctx); err != nil {
		s.logger.Warn("close_failed", "error", err)
	}
}

func (s *session) schemas() ([]migrate.Schema, error) {
	return migrate.LoadSchemas(s.cfg.SchemasPath())
}
