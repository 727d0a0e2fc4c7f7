package dbtcli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dbtbridge/internal/ir"
)

// Invocation modes.
const (
	ModeBuild = "build"
	ModeRun   = "run"
	modeParse = "parse"
)

// ValidModes are the modes accepted from callers.
var ValidModes = []string{ModeBuild, ModeRun}

// Artifact file names inside the target directory.
const (
	ManifestFile   = "manifest.json"
	RunResultsFile = "run_results.json"
)

// Defaults for dbt_project.yml fields that may be omitted.
const (
	defaultTargetPath = "target"
	defaultModelPath  = "models"
	defaultExecutable = "dbt"
)

// DefaultGlobalFlags are passed before the mode when Options.GlobalFlags
// is nil.
var DefaultGlobalFlags = []string{"--no-use-colors"}

// varsTimeLayout mirrors how partition boundaries render as text
// ("2024-01-01 00:00:00+00:00").
const varsTimeLayout = "2006-01-02 15:04:05-07:00"

// ProjectFile holds the dbt_project.yml fields the bridge reads.
type ProjectFile struct {
	Name       string   `yaml:"name"`
	Profile    string   `yaml:"profile"`
	ModelPaths []string `yaml:"model-paths"`
	TargetPath string   `yaml:"target-path"`
}

// LoadProjectFile reads dir/dbt_project.yml. A missing file yields the
// dbt defaults.
func LoadProjectFile(dir string) (ProjectFile, error) {
	pf := ProjectFile{}

	data, err := os.ReadFile(filepath.Join(dir, "dbt_project.yml"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return pf, fmt.Errorf("read dbt_project.yml: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &pf); err != nil {
			return pf, fmt.Errorf("parse dbt_project.yml: %w", err)
		}
	}

	if len(pf.ModelPaths) == 0 {
		pf.ModelPaths = []string{defaultModelPath}
	}
	if pf.TargetPath == "" {
		pf.TargetPath = defaultTargetPath
	}
	return pf, nil
}

// Options configure a Project.
type Options struct {
	Dir         string
	Target      string
	ProfilesDir string
	Executable  string
	GlobalFlags []string
	Select      string
	Exclude     string
	Env         []string // extra KEY=VALUE pairs for the subprocess
}

// Project is a dbt project the bridge can invoke.
type Project struct {
	Options
	File ProjectFile
}

// NewProject resolves a project directory and reads its dbt_project.yml.
func NewProject(opts Options) (*Project, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("dbt project dir is required")
	}
	info, err := os.Stat(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("dbt project dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dbt project dir %q is not a directory", opts.Dir)
	}
	if opts.Executable == "" {
		opts.Executable = defaultExecutable
	}
	if opts.GlobalFlags == nil {
		opts.GlobalFlags = append([]string{}, DefaultGlobalFlags...)
	}

	pf, err := LoadProjectFile(opts.Dir)
	if err != nil {
		return nil, err
	}
	return &Project{Options: opts, File: pf}, nil
}

// TargetDir is where dbt writes its artifacts.
func (p *Project) TargetDir() string {
	if filepath.IsAbs(p.File.TargetPath) {
		return p.File.TargetPath
	}
	return filepath.Join(p.Dir, p.File.TargetPath)
}

// ManifestPath is the path of target/manifest.json.
func (p *Project) ManifestPath() string {
	return filepath.Join(p.TargetDir(), ManifestFile)
}

// Window is a partition time window. Start and End are the first and last
// boundaries handed to partition-scoped SQL.
type Window struct {
	Start time.Time
	End   time.Time
}

// Vars encodes the window as dbt vars.
func (w Window) Vars() ir.Object {
	return ir.Object{
		"min_date": ir.String(w.Start.Format(varsTimeLayout)),
		"max_date": ir.String(w.End.Format(varsTimeLayout)),
	}
}

// Validate checks the window is ordered.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("partition window needs both start and end")
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("partition window end %s is before start %s", w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}

// ValidateMode rejects modes other than build and run.
func ValidateMode(mode string) error {
	for _, m := range ValidModes {
		if m == mode {
			return nil
		}
	}
	return fmt.Errorf("invalid dbt mode %q: must be one of %v", mode, ValidModes)
}

// Args builds the dbt command line. With a window the mode is followed by
// --vars carrying min_date/max_date; without one, no vars are passed.
func (p *Project) Args(mode string, window *Window) ([]string, error) {
	args := append([]string{}, p.GlobalFlags...)
	args = append(args, "--log-format", "json", mode)

	if window != nil {
		vars, err := ir.MarshalCanonical(window.Vars())
		if err != nil {
			return nil, fmt.Errorf("encode vars: %w", err)
		}
		args = append(args, "--vars", string(vars))
	}

	args = append(args, "--project-dir", p.Dir)
	if p.Target != "" {
		args = append(args, "--target", p.Target)
	}
	if p.ProfilesDir != "" {
		args = append(args, "--profiles-dir", p.ProfilesDir)
	}
	if mode != modeParse {
		if p.Select != "" {
			args = append(args, "--select", p.Select)
		}
		if p.Exclude != "" {
			args = append(args, "--exclude", p.Exclude)
		}
	}
	return args, nil
}
