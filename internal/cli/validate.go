package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/dbtbridge/internal/config"
)

// ConfigProblem is one problem reported by validate.
type ConfigProblem struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool            `json:"valid"`
	Deployments []string        `json:"deployments"`
	Errors      []ConfigProblem `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [config-dir]",
		Short: "Validate the CUE configuration",
		Long: `Validate the CUE configuration without running dbt.

Every deployment is compiled, so all problems are reported at once.
The directory defaults to --config.

Exit codes:
  0 - Configuration valid
  1 - Configuration invalid
  2 - Command error (no directory given)

Examples:
  dbtbridge validate ./deploy
  dbtbridge validate --config ./deploy --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := rootOpts.ConfigDir
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(rootOpts, dir, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	if dir == "" {
		return NewExitError(ExitCommandError, "no config directory given (pass one or use --config)")
	}
	out := opts.formatter(cmd)
	out.VerboseLog("Validating %s", dir)

	cfg, loadErrs := config.LoadAll(dir, config.LoadModeCollectAll)

	result := ValidationResult{Deployments: []string{}}
	for _, err := range loadErrs {
		result.Errors = append(result.Errors, problemOf(err))
	}
	if cfg != nil {
		result.Deployments = cfg.Names()
		for _, verr := range config.Validate(cfg) {
			result.Errors = append(result.Errors, problemOf(verr))
		}
	}
	result.Valid = len(result.Errors) == 0

	if err := out.Render(result, func(w io.Writer) {
		writeValidationResult(w, dir, result)
	}); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d configuration problems", len(result.Errors)))
	}
	return nil
}

func problemOf(err error) ConfigProblem {
	var loadErr *config.LoadError
	if errors.As(err, &loadErr) {
		p := ConfigProblem{Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			p.File = loadErr.Pos.Filename()
			p.Line = loadErr.Pos.Line()
		}
		return p
	}
	var verr config.ValidationError
	if errors.As(err, &verr) {
		return ConfigProblem{Code: verr.Code, Field: verr.Field, Message: verr.Message}
	}
	return ConfigProblem{Code: ErrCodeGeneric, Message: err.Error()}
}

func writeValidationResult(w io.Writer, dir string, result ValidationResult) {
	if result.Valid {
		fmt.Fprintf(w, "✓ %s is valid (%d deployments: %v)\n", dir, len(result.Deployments), result.Deployments)
		return
	}
	fmt.Fprintf(w, "✗ %s has %d problems\n", dir, len(result.Errors))
	for _, p := range result.Errors {
		location := p.Field
		if p.File != "" {
			location = fmt.Sprintf("%s:%d", p.File, p.Line)
		}
		if location != "" {
			fmt.Fprintf(w, "  [%s] %s: %s\n", p.Code, location, p.Message)
		} else {
			fmt.Fprintf(w, "  [%s] %s\n", p.Code, p.Message)
		}
	}
}
