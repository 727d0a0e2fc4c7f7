package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/dbtbridge/internal/dbtcli"
	"github.com/roach88/dbtbridge/internal/engine"
	"github.com/roach88/dbtbridge/internal/ir"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	Manifest   string
	RunResults string
	Log        string
	Mode       string
	Database   string

	// RunIDs allows overriding the run id generator (for testing).
	RunIDs engine.RunIDGenerator
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Record a dbt run from saved artifacts",
		Long: `Record a run that dbt executed elsewhere.

Reads a manifest, optional run results and a saved structured log
(dbt --log-format json), reconciles them exactly like 'dbtbridge run'
and records the materializations. Use '--log -' to read the log from
standard input.

Exit codes:
  0 - Run recorded with status success
  1 - Run recorded with failures, or reconciliation failed
  2 - Command error (missing files, store unavailable)

Examples:
  dbtbridge reconcile --manifest target/manifest.json --run-results target/run_results.json --log dbt.log
  dbt build --log-format json | dbtbridge reconcile --manifest target/manifest.json --log -`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Manifest, "manifest", "", "path to manifest.json (required)")
	cmd.Flags().StringVar(&opts.RunResults, "run-results", "", "path to run_results.json")
	cmd.Flags().StringVar(&opts.Log, "log", "", "path to the JSON log, or - for stdin")
	cmd.Flags().StringVar(&opts.Mode, "mode", dbtcli.ModeBuild, "dbt command that produced the artifacts (build|run)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from deployment)")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func runReconcile(opts *ReconcileOptions, cmd *cobra.Command) error {
	if err := dbtcli.ValidateMode(opts.Mode); err != nil {
		return WrapExitError(ExitCommandError, "invalid mode", err)
	}

	artifacts, err := readArtifacts(opts, cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg, d, err := loadDeployment(opts.RootOptions)
	if err != nil {
		return err
	}
	st, closeStore, err := openStore(opts.Database, d)
	if err != nil {
		return err
	}
	defer closeStore()

	engineOpts := []engine.Option{engine.WithDeployment(d.Name)}
	if opts.RunIDs != nil {
		engineOpts = append(engineOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}
	eng := engine.New(st, nil, cfg.Translator, engineOpts...)

	result, err := eng.Ingest(commandContext(cmd), opts.Mode, nil, artifacts)
	return reportRun(opts.formatter(cmd), result, err)
}

// readArtifacts loads the files named by the flags.
func readArtifacts(opts *ReconcileOptions, stdin io.Reader) (engine.Artifacts, error) {
	var artifacts engine.Artifacts

	manifest, err := dbtcli.LoadManifest(opts.Manifest)
	if err != nil {
		return artifacts, WrapExitError(ExitCommandError, "failed to load manifest", err)
	}
	artifacts.Manifest = manifest

	if opts.RunResults != "" {
		results, err := dbtcli.LoadRunResults(opts.RunResults)
		if err != nil {
			return artifacts, WrapExitError(ExitCommandError, "failed to load run results", err)
		}
		artifacts.RunResults = results
	}

	artifacts.Events = []ir.Event{}
	if opts.Log != "" {
		events, err := readLog(opts.Log, stdin)
		if err != nil {
			return artifacts, WrapExitError(ExitCommandError, "failed to read log", err)
		}
		artifacts.Events = events
	}
	return artifacts, nil
}

func readLog(path string, stdin io.Reader) ([]ir.Event, error) {
	if path == "-" {
		return dbtcli.ParseLog(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	events, err := dbtcli.ParseLog(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}
