package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/dbtbridge/internal/config"
	"github.com/roach88/dbtbridge/internal/dbtcli"
	"github.com/roach88/dbtbridge/internal/store"
)

// commandContext returns the command's context, or Background when the
// command was not started through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// loadDeployment reads --config (or the built-in default) and resolves the
// --deployment selection. Errors are command errors.
func loadDeployment(opts *RootOptions) (*config.Config, *config.Deployment, error) {
	cfg := config.Default()
	if opts.ConfigDir != "" {
		loaded, err := config.Load(opts.ConfigDir)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}

	d, err := config.Resolve(cfg, opts.Deployment)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to resolve deployment", err)
	}
	return cfg, d, nil
}

// newProject builds the dbt driver for a deployment.
func newProject(d *config.Deployment) (*dbtcli.Project, error) {
	project, err := dbtcli.NewProject(d.ProjectOptions())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open dbt project", err)
	}
	return project, nil
}

// openStore opens the run history database. An explicit --db wins over the
// deployment's store path.
func openStore(dbFlag string, d *config.Deployment) (*store.Store, func(), error) {
	path := dbFlag
	if path == "" {
		path = d.Store.Path
	}
	slog.Debug("opening store", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	closeFn := func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}
	return st, closeFn, nil
}
