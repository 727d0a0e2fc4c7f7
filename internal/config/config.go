package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/samber/lo"

	"github.com/roach88/dbtbridge/internal/dbtcli"
	"github.com/roach88/dbtbridge/internal/translator"
)

// Environment variables read by Resolve.
const (
	EnvDeployment      = "DBTBRIDGE_DEPLOYMENT"
	EnvWarehousePath   = "DBTBRIDGE_WAREHOUSE_PATH"
	EnvWarehouseSchema = "DBTBRIDGE_WAREHOUSE_SCHEMA"
)

// Defaults.
const (
	DefaultDeployment      = "dev"
	DefaultWarehouseSchema = "ascii"
	DefaultStorePath       = "dbtbridge.db"
)

// Config is the compiled configuration.
type Config struct {
	// Dir is the configuration directory; relative paths resolve against it.
	Dir         string
	Translator  translator.Config
	Deployments map[string]Deployment
}

// Deployment is one named environment the bridge can run against.
type Deployment struct {
	Name      string
	DBT       DBT
	Warehouse Warehouse
	Store     Store
}

// DBT configures the dbt invocation of a deployment.
type DBT struct {
	ProjectDir  string
	Target      string
	ProfilesDir string
	Executable  string
	GlobalFlags []string
	Select      string
	Exclude     string
	// Prepare runs `dbt parse` before translating when the manifest is missing.
	Prepare bool
}

// Warehouse locates the database dbt writes to.
type Warehouse struct {
	Path   string
	Schema string
}

// Store locates the run history database.
type Store struct {
	Path string
}

// Default is the configuration used when no config directory is given: a
// single dev deployment over the dbt project in the working directory.
func Default() *Config {
	return &Config{
		Dir:        ".",
		Translator: translator.Config{}.WithDefaults(),
		Deployments: map[string]Deployment{
			DefaultDeployment: {
				Name: DefaultDeployment,
				DBT: DBT{
					ProjectDir:  ".",
					Executable:  "dbt",
					GlobalFlags: slices.Clone(dbtcli.DefaultGlobalFlags),
					Prepare:     true,
				},
				Store: Store{Path: DefaultStorePath},
			},
		},
	}
}

// Names returns the deployment names in sorted order.
func (c *Config) Names() []string {
	return sortedKeys(c.Deployments)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}

// Resolve selects a deployment. An empty name falls back to the
// DBTBRIDGE_DEPLOYMENT environment variable and then to "dev".
//
// Relative paths are resolved against the config directory, and the
// warehouse schema falls back to DBTBRIDGE_WAREHOUSE_SCHEMA, then "ascii".
func Resolve(cfg *Config, name string) (*Deployment, error) {
	if name == "" {
		name = os.Getenv(EnvDeployment)
	}
	if name == "" {
		name = DefaultDeployment
	}

	d, ok := cfg.Deployments[name]
	if !ok {
		return nil, fmt.Errorf("unknown deployment %q (known: %v)", name, cfg.Names())
	}
	slog.Info("Using deployment of", "deployment", name)

	d.Name = name
	d.DBT.ProjectDir = cfg.resolvePath(d.DBT.ProjectDir)
	if d.DBT.ProfilesDir != "" {
		d.DBT.ProfilesDir = cfg.resolvePath(d.DBT.ProfilesDir)
	}
	if d.Warehouse.Path != "" {
		d.Warehouse.Path = cfg.resolvePath(d.Warehouse.Path)
	}
	if d.Store.Path == "" {
		d.Store.Path = DefaultStorePath
	}
	if d.Store.Path != ":memory:" {
		d.Store.Path = cfg.resolvePath(d.Store.Path)
	}
	if d.Warehouse.Schema == "" {
		d.Warehouse.Schema = os.Getenv(EnvWarehouseSchema)
	}
	if d.Warehouse.Schema == "" {
		d.Warehouse.Schema = DefaultWarehouseSchema
	}
	return &d, nil
}

// Env is the environment handed to dbt so profiles.yml can reference the
// warehouse with env_var().
func (d *Deployment) Env() []string {
	env := []string{EnvWarehouseSchema + "=" + d.Warehouse.Schema}
	if d.Warehouse.Path != "" {
		env = append(env, EnvWarehousePath+"="+d.Warehouse.Path)
	}
	return env
}

// ProjectOptions converts the deployment into dbt driver options.
func (d *Deployment) ProjectOptions() dbtcli.Options {
	return dbtcli.Options{
		Dir:         d.DBT.ProjectDir,
		Target:      d.DBT.Target,
		ProfilesDir: d.DBT.ProfilesDir,
		Executable:  d.DBT.Executable,
		GlobalFlags: d.DBT.GlobalFlags,
		Select:      d.DBT.Select,
		Exclude:     d.DBT.Exclude,
		Env:         d.Env(),
	}
}

func (c *Config) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}
