package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/dbtbridge/internal/dbtcli"
	"github.com/roach88/dbtbridge/internal/engine"
	"github.com/roach88/dbtbridge/internal/ir"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Mode           string
	PartitionStart string
	PartitionEnd   string
	Database       string

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// RunReport is the JSON payload of the run and reconcile commands.
type RunReport struct {
	Run              ir.Run               `json:"run"`
	Events           int                  `json:"events"`
	Materializations []ir.Materialization `json:"materializations"`
}

// partitionLayouts are the accepted --partition-start/--partition-end forms.
var partitionLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run dbt and record materialized assets",
		Long: `Invoke dbt for the selected deployment and record the run.

dbt's structured log is read as it is produced. Every successfully built
model becomes a materialization of its asset, enriched with rows_affected
from run_results.json and compiled_sql and owner from the manifest.

A partition window is passed to dbt as min_date/max_date vars.

Exit codes:
  0 - Run succeeded
  1 - Run failed or partially failed
  2 - Command error (bad flags, missing project, store unavailable)

Examples:
  dbtbridge run
  dbtbridge run --mode run --deployment prod --config ./deploy
  dbtbridge run --partition-start 2024-01-01 --partition-end 2024-01-02
  dbtbridge run --db ./runs.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBT(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", dbtcli.ModeBuild, "dbt command (build|run)")
	cmd.Flags().StringVar(&opts.PartitionStart, "partition-start", "", "partition window start (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.PartitionEnd, "partition-end", "", "partition window end (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from deployment)")

	return cmd
}

func runDBT(opts *RunOptions, cmd *cobra.Command) error {
	if err := dbtcli.ValidateMode(opts.Mode); err != nil {
		return WrapExitError(ExitCommandError, "invalid mode", err)
	}
	window, err := parseWindow(opts.PartitionStart, opts.PartitionEnd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid partition window", err)
	}

	cfg, d, err := loadDeployment(opts.RootOptions)
	if err != nil {
		return err
	}
	project, err := newProject(d)
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
	eng := engine.New(st, project, cfg.Translator, engineOpts...)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting dbt", "deployment", d.Name, "mode", opts.Mode, "project_dir", project.Dir)
	result, err := eng.Execute(ctx, engine.Request{Mode: opts.Mode, Window: window})
	return reportRun(opts.formatter(cmd), result, err)
}

// reportRun renders a recorded run and maps its status to an exit code.
func reportRun(out *OutputFormatter, result *engine.Result, err error) error {
	if result == nil {
		if err == nil {
			err = fmt.Errorf("no run recorded")
		}
		return WrapExitError(ExitCommandError, "run not started", err)
	}

	report := RunReport{
		Run:              result.Run,
		Events:           len(result.Events),
		Materializations: result.Materializations,
	}
	if report.Materializations == nil {
		report.Materializations = []ir.Materialization{}
	}
	if err != nil {
		return out.Fail(ExitFailure, fmt.Sprintf("run %s failed", result.Run.ID), err, report)
	}

	if renderErr := out.Render(report, func(w io.Writer) {
		writeRunReport(w, report)
	}); renderErr != nil {
		return renderErr
	}
	if result.Run.Status != ir.RunStatusSuccess {
		return NewExitError(ExitFailure, fmt.Sprintf("run %s finished with status %s", result.Run.ID, result.Run.Status))
	}
	return nil
}

func writeRunReport(w io.Writer, report RunReport) {
	fmt.Fprintf(w, "Run %s: %s\n", report.Run.ID, report.Run.Status)
	if report.Run.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", report.Run.Error)
	}
	fmt.Fprintf(w, "  events: %d\n", report.Events)
	fmt.Fprintf(w, "  materializations: %d\n", len(report.Materializations))
	for _, m := range report.Materializations {
		fmt.Fprintf(w, "    [%d] %s (%s) %s\n", m.Seq, m.AssetKey, m.UniqueID, canonical(m.Metadata))
	}
}

// parseWindow builds a partition window from the two flags. Both or
// neither must be set.
func parseWindow(start, end string) (*dbtcli.Window, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, fmt.Errorf("--partition-start and --partition-end must be set together")
	}
	s, err := parseTime(start)
	if err != nil {
		return nil, fmt.Errorf("partition start: %w", err)
	}
	e, err := parseTime(end)
	if err != nil {
		return nil, fmt.Errorf("partition end: %w", err)
	}
	w := &dbtcli.Window{Start: s, End: e}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

func parseTime(value string) (time.Time, error) {
	for _, layout := range partitionLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q (want RFC 3339 or YYYY-MM-DD)", value)
}
